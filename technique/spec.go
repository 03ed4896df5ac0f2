package technique

// All is the request keyword that expands to every technique of a domain.
const All = "all"

// Placeholders substituted into Invocation.Args by the stage adapter.
const (
	PlaceholderInput  = "{input}"
	PlaceholderOutput = "{output}"
	PlaceholderEngine = "{engine}"
)

// Invocation describes how an external engine is called and where its
// result appears. Success is a zero exit status plus a non-empty result file.
type Invocation struct {
	// Interpreter is the executable that runs the engine (pwsh, python3).
	Interpreter string

	// Script is the engine entry point relative to the engines directory.
	Script string

	// Args is the argument template passed to Interpreter. An argument that
	// is exactly a placeholder receives the raw path; a placeholder embedded
	// in a longer argument is expected inside single quotes and has its
	// single quotes doubled, which is PowerShell's escaping rule.
	Args []string

	// ResultPath, when set, is where the engine writes its result, relative
	// to the directory containing Script. Empty means {output}.
	ResultPath string
}

// Spec is one registry entry.
type Spec struct {
	ID          string
	Name        string
	Description string
	Domain      Domain
	Invocation  Invocation
}

func (s Spec) clone() Spec {
	s.Invocation.Args = append([]string(nil), s.Invocation.Args...)
	return s
}

// Builtin returns the builtin technique catalog in canonical order.
func Builtin() []Spec {
	return []Spec{
		{
			ID:          "invoke",
			Name:        "Invoke-PSObfuscation",
			Description: "PowerShell cmdlets, comments, and variable obfuscation",
			Domain:      PowerShell,
			Invocation: Invocation{
				Interpreter: "pwsh",
				Script:      "Invoke-PSObfuscation.ps1",
				Args: []string{
					"-NoProfile", "-NonInteractive", "-Command",
					"Import-Module '{engine}'; Invoke-PSObfuscation -Path '{input}' -Cmdlets -Comments -NamespaceClasses -Variables -OutFile '{output}'",
				},
			},
		},
		{
			ID:          "xencrypt",
			Name:        "BetterXencrypt",
			Description: "PowerShell encryption layers",
			Domain:      PowerShell,
			Invocation: Invocation{
				Interpreter: "pwsh",
				Script:      "BetterXencrypt.ps1",
				Args: []string{
					"-NoProfile", "-NonInteractive", "-Command",
					"Import-Module '{engine}'; Invoke-BetterXencrypt -InFile '{input}' -OutFile '{output}' -Iterations 10",
				},
			},
		},
		{
			ID:          "chameleon",
			Name:        "Chameleon",
			Description: "Multi-layer PowerShell obfuscation with random backticks",
			Domain:      PowerShell,
			Invocation: Invocation{
				Interpreter: "python3",
				Script:      "Chameleon/chameleon.py",
				Args:        []string{"{engine}", "{input}", "-o", "{output}", "-a", "-l", "3", "--random-backticks"},
			},
		},
		{
			ID:          "pyfuscation",
			Name:        "PyFuscation",
			Description: "Function, variable and parameter renaming",
			Domain:      Python,
			Invocation: Invocation{
				Interpreter: "python3",
				Script:      "PyFuscation/PyFuscation.py",
				Args:        []string{"{engine}", "-fvp", "--ps", "{input}"},
				ResultPath:  "tmp/script.ps1",
			},
		},
	}
}
