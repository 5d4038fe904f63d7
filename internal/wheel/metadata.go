package wheel

import (
	"archive/zip"
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// wheelFile is the parsed content of a wheel's WHEEL metadata file.
type wheelFile struct {
	FormatMajor   int
	RootIsPurelib bool
	Generator     string
	Tags          []string
}

const supportedWheelFormatMajor = 1

func (w wheelFile) checkSupported() error {
	if w.FormatMajor != supportedWheelFormatMajor {
		return &MetadataError{Detail: fmt.Sprintf("unsupported Wheel-Version major %d", w.FormatMajor)}
	}

	return nil
}

func readWheelFile(files []*zip.File, distInfoName string) (wheelFile, error) {
	pairs, err := readKeyValueFile(files, distInfoName+"/WHEEL")
	if err != nil {
		return wheelFile{}, err
	}

	w := wheelFile{FormatMajor: 1}

	if v, ok := pairs["Wheel-Version"]; ok {
		major, _, _ := strings.Cut(v, ".")
		if n, err := strconv.Atoi(major); err == nil {
			w.FormatMajor = n
		}
	}

	w.RootIsPurelib = strings.EqualFold(pairs["Root-Is-Purelib"], "true")
	w.Generator = pairs["Generator"]

	if v, ok := pairs["Tag"]; ok {
		w.Tags = strings.Split(v, ",")
	}

	return w, nil
}

// readMetadataName reads just the Name field out of METADATA, enough to
// cross-check against the wheel filename's distribution (spec.md §4.3
// step 3).
func readMetadataName(files []*zip.File, distInfoName string) (string, error) {
	pairs, err := readKeyValueFile(files, distInfoName+"/METADATA")
	if err != nil {
		return "", err
	}

	name, ok := pairs["Name"]
	if !ok {
		return "", &MetadataError{Detail: "METADATA missing Name field"}
	}

	return name, nil
}

// readKeyValueFile reads an RFC 822-ish "Key: value" file out of the
// archive, the shape both WHEEL and METADATA's header block share.
// Repeated "Tag:" lines are joined into one comma-separated value here,
// which readWheelFile splits again; for any other repeated key the last
// value wins.
func readKeyValueFile(files []*zip.File, name string) (map[string]string, error) {
	for _, f := range files {
		if f.Name != name {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, &InvalidWheelError{Detail: fmt.Sprintf("opening %s: %v", name, err)}
		}
		defer func() { _ = rc.Close() }()

		result := map[string]string{}

		scanner := bufio.NewScanner(rc)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				break // header block ends at the first blank line
			}

			key, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}

			key = strings.TrimSpace(key)
			value = strings.TrimSpace(value)

			if key == "Tag" {
				if existing, ok := result["Tag"]; ok {
					result["Tag"] = existing + "," + value
				} else {
					result["Tag"] = value
				}

				continue
			}

			result[key] = value
		}

		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}

		return result, nil
	}

	return nil, &InvalidWheelError{Detail: name + " not found in archive"}
}
