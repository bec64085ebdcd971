package rules

// Built-in thresholds. The structural tier is tuned for Python-style code;
// the generic tier is looser on line and file length because it cannot see
// structure.
const (
	DefaultMaxFunctionLength = 50
	DefaultMaxClassLength    = 300
	DefaultMaxComplexity     = 10
	DefaultMaxParameters     = 5

	DefaultStructuralMaxFileLength = 1000
	DefaultStructuralMaxLineLength = 88

	DefaultGenericMaxFileLength = 2000
	DefaultGenericMaxLineLength = 120
)

// The builtin calls stay case-sensitive so Go methods such as db.Exec( in the
// same tier do not match.
var structuralForbidden = []string{
	`(?-i)eval\s*\(`,
	`(?-i)exec\s*\(`,
	`os\.system\s*\(`,
	`subprocess\.call\s*\([^)]*shell\s*=\s*True`,
}

var structuralSecurity = []string{
	`password\s*=\s*["'][^"']*["']`,
	`api_key\s*=\s*["'][^"']*["']`,
	`secret\s*=\s*["'][^"']*["']`,
}

var genericForbidden = []string{
	`#\s*TODO\b`,
	`//\s*TODO\b`,
	`#\s*FIXME\b`,
	`//\s*FIXME\b`,
	`console\.log\s*\(`,
	`print\s*\(`,
	`debugger;`,
}

var genericSecurity = []string{
	`password\s*[:=]\s*["'][^"']*["']`,
	`token\s*[:=]\s*["'][^"']*["']`,
}

// DefaultSpec returns the built-in rules for a tier. The returned slices are
// fresh copies.
func DefaultSpec(tier Tier) Spec {
	if tier == TierStructural {
		return Spec{
			MaxFunctionLength: DefaultMaxFunctionLength,
			MaxClassLength:    DefaultMaxClassLength,
			MaxFileLength:     DefaultStructuralMaxFileLength,
			MaxComplexity:     DefaultMaxComplexity,
			MaxParameters:     DefaultMaxParameters,
			MaxLineLength:     DefaultStructuralMaxLineLength,
			RequireDocstrings: true,
			RequireTypeHints:  false,
			ForbiddenPatterns: append([]string(nil), structuralForbidden...),
			SecurityPatterns:  append([]string(nil), structuralSecurity...),
		}
	}
	return Spec{
		MaxFunctionLength: DefaultMaxFunctionLength,
		MaxClassLength:    DefaultMaxClassLength,
		MaxFileLength:     DefaultGenericMaxFileLength,
		MaxComplexity:     DefaultMaxComplexity,
		MaxParameters:     DefaultMaxParameters,
		MaxLineLength:     DefaultGenericMaxLineLength,
		ForbiddenPatterns: append([]string(nil), genericForbidden...),
		SecurityPatterns:  append([]string(nil), genericSecurity...),
	}
}
