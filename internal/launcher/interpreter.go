package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ebitengine/purego"
)

// LibraryPathError reports that no shared library was found at any of
// the platform-specific candidate paths under an interpreter's home.
type LibraryPathError struct {
	Home       string
	Candidates []string
}

func (e *LibraryPathError) Error() string {
	return fmt.Sprintf("no python shared library found under %s (tried %v)", e.Home, e.Candidates)
}

// PyInitError reports a non-zero/failing return from one of the
// interpreter's blocking C-API entry points.
type PyInitError struct {
	Stage string
}

func (e *PyInitError) Error() string {
	return fmt.Sprintf("python initialization failed at stage %q", e.Stage)
}

// LibraryPath returns the platform-specific candidate paths for an
// interpreter shared library rooted at home (a provisioned standalone
// Python install directory), most-specific first.
func LibraryPath(home string, v PythonVersion) []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{filepath.Join(home, "lib", fmt.Sprintf("libpython%d.%d.dylib", v.Major, v.Minor))}
	case "windows":
		return []string{filepath.Join(home, fmt.Sprintf("python%d%d.dll", v.Major, v.Minor))}
	default:
		return []string{filepath.Join(home, "lib", "libpython3.so")}
	}
}

// dlopenFlags mirrors libdl's RTLD_LAZY | RTLD_GLOBAL: native extension
// modules loaded later by the interpreter need its symbols visible.
func dlopenFlags() int {
	if runtime.GOOS == "windows" {
		return 0
	}

	return purego.RTLD_LAZY | purego.RTLD_GLOBAL
}

// Interpreter is a handle to a dynamically-loaded libpython, exposing
// just the C-API entry points the launcher drives (spec.md §4.7).
type Interpreter struct {
	handle uintptr

	preInitialize   func(preconfig uintptr) int32
	setPythonHome   func(home *wcharT)
	setProgramName  func(name *wcharT)
	initialize      func()
	runSimpleString func(command string) int32
	main            func(argc int32, argv **wcharT) int32
}

// Load dlopens the shared library for the given provisioned interpreter
// home and resolves every C-API symbol the launcher needs.
func Load(home string, v PythonVersion) (*Interpreter, error) {
	candidates := LibraryPath(home, v)

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}

		handle, err := purego.Dlopen(path, dlopenFlags())
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}

		interp := &Interpreter{handle: handle}

		purego.RegisterLibFunc(&interp.preInitialize, handle, "Py_PreInitialize")
		purego.RegisterLibFunc(&interp.setPythonHome, handle, "Py_SetPythonHome")
		purego.RegisterLibFunc(&interp.setProgramName, handle, "Py_SetProgramName")
		purego.RegisterLibFunc(&interp.initialize, handle, "Py_Initialize")
		purego.RegisterLibFunc(&interp.runSimpleString, handle, "PyRun_SimpleString")
		purego.RegisterLibFunc(&interp.main, handle, "Py_Main")

		return interp, nil
	}

	return nil, &LibraryPathError{Home: home, Candidates: candidates}
}

// PreInitialize calls Py_PreInitialize with a null preconfig pointer
// (spec.md §4.7's "Pre-initialization" step). No PyPreConfig struct is
// built over FFI, so UTF-8 mode is not set explicitly here; the
// interpreter's own default applies.
func (in *Interpreter) PreInitialize() error {
	if status := in.preInitialize(0); status != 0 {
		return &PyInitError{Stage: "pre-initialize"}
	}

	return nil
}

// Configure sets PYTHONNOUSERSITE and points the interpreter at its
// provisioned home and this process's own executable as the reported
// program name, so that a subprocess exec-ing "the python interpreter"
// re-enters the launcher (spec.md §4.7's "Configuration" step).
func (in *Interpreter) Configure(home, selfExe string) error {
	if err := os.Setenv("PYTHONNOUSERSITE", "1"); err != nil {
		return fmt.Errorf("setting PYTHONNOUSERSITE: %w", err)
	}

	homeW, err := encodeWChars(home)
	if err != nil {
		return fmt.Errorf("encoding python home: %w", err)
	}

	exeW, err := encodeWChars(selfExe)
	if err != nil {
		return fmt.Errorf("encoding program name: %w", err)
	}

	in.setPythonHome(&homeW[0])
	in.setProgramName(&exeW[0])

	return nil
}

// Initialize calls Py_Initialize.
func (in *Interpreter) Initialize() {
	in.initialize()
}

// RunSimpleString executes source via PyRun_SimpleString; a non-zero
// return is fatal (spec.md §4.7's "Hook injection" step).
func (in *Interpreter) RunSimpleString(source string) error {
	if status := in.runSimpleString(source); status != 0 {
		return &PyInitError{Stage: "run-string"}
	}

	return nil
}

// Main builds a [program-name, args...] wide-character argv and calls
// Py_Main, returning the interpreter's exit code (spec.md §4.7's "Main"
// step). Every call into the interpreter up to and including this one
// is blocking: the launcher is single-threaded while the interpreter
// runs, though the interpreter itself may spawn threads.
func (in *Interpreter) Main(programName string, args []string) (exitCode int32, err error) {
	all := append([]string{programName}, args...)

	argv := make([]*wcharT, len(all))

	for i, a := range all {
		w, err := encodeWChars(a)
		if err != nil {
			return 0, fmt.Errorf("encoding argv[%d]: %w", i, err)
		}

		argv[i] = &w[0]
	}

	return in.main(int32(len(argv)), &argv[0]), nil
}
