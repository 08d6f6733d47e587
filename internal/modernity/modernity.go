// Package modernity implements the Modernity Auditor (spec.md §4.7): six
// mandatory, side-effect-free boolean checks over a cloned repository's
// filesystem, producing a normalized score.
package modernity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/scoutforge/scout/internal/schema"
)

// Signal is a single named boolean check with optional diagnostic detail
// (spec.md §3).
type Signal struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Report is the full set of modernity signals for one repository, plus the
// derived score.
type Report struct {
	Signals []Signal `json:"signals"`
	Score   float64  `json:"score"`
}

// Validate implements schema.Validator.
func (r *Report) Validate() error {
	if len(r.Signals) == 0 {
		return schema.NonEmpty("signals", "")
	}
	return schema.Unit01("score", r.Score)
}

// defaultMinEngineMajor is the default minimum runtime/engine major version
// threshold (check 5); internal/config.ModernityConfig overrides it.
const defaultMinEngineMajor = 18

// Audit runs all six checks over root.
func Audit(root string, minEngineMajor int) *Report {
	if minEngineMajor <= 0 {
		minEngineMajor = defaultMinEngineMajor
	}

	pkg := readPackageJSON(root)

	signals := []Signal{
		checkESModuleSystem(pkg),
		checkStrictTypeChecking(root),
		checkModernLintConfig(root),
		checkPackageManagerDeclared(root),
		checkMinimumEngineTarget(pkg, minEngineMajor),
		checkModernTestRunner(root, pkg),
	}

	passed := 0
	for _, s := range signals {
		if s.Passed {
			passed++
		}
	}

	return &Report{Signals: signals, Score: float64(passed) / float64(len(signals))}
}

func readPackageJSON(root string) map[string]any {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return nil
	}
	var parsed map[string]any
	if json.Unmarshal(data, &parsed) != nil {
		return nil
	}
	return parsed
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func checkESModuleSystem(pkg map[string]any) Signal {
	if pkg == nil {
		return Signal{Name: "es_module_system", Passed: false, Detail: "no package.json"}
	}
	if v, ok := pkg["type"].(string); ok && v == "module" {
		return Signal{Name: "es_module_system", Passed: true, Detail: `package.json "type": "module"`}
	}
	return Signal{Name: "es_module_system", Passed: false, Detail: `package.json missing "type": "module"`}
}

func checkStrictTypeChecking(root string) Signal {
	data, err := os.ReadFile(filepath.Join(root, "tsconfig.json"))
	if err != nil {
		return Signal{Name: "strict_type_checking", Passed: false, Detail: "no tsconfig.json"}
	}
	if strings.Contains(string(data), `"strict"`) && strings.Contains(string(data), "true") {
		return Signal{Name: "strict_type_checking", Passed: true, Detail: "tsconfig.json sets strict"}
	}
	return Signal{Name: "strict_type_checking", Passed: false, Detail: "tsconfig.json present but strict not confirmed"}
}

func checkModernLintConfig(root string) Signal {
	if fileExists(filepath.Join(root, "eslint.config.js")) || fileExists(filepath.Join(root, "eslint.config.mjs")) {
		return Signal{Name: "modern_lint_config", Passed: true, Detail: "flat eslint config present"}
	}
	return Signal{Name: "modern_lint_config", Passed: false, Detail: "no flat eslint config found"}
}

func checkPackageManagerDeclared(root string) Signal {
	for _, lock := range []string{"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "go.sum", "Cargo.lock", "poetry.lock"} {
		if fileExists(filepath.Join(root, lock)) {
			return Signal{Name: "package_manager_declared", Passed: true, Detail: lock + " present"}
		}
	}
	return Signal{Name: "package_manager_declared", Passed: false, Detail: "no recognized lock file"}
}

func checkMinimumEngineTarget(pkg map[string]any, minMajor int) Signal {
	if pkg == nil {
		return Signal{Name: "minimum_engine_target", Passed: false, Detail: "no package.json"}
	}
	engines, ok := pkg["engines"].(map[string]any)
	if !ok {
		return Signal{Name: "minimum_engine_target", Passed: false, Detail: "no engines field"}
	}
	node, ok := engines["node"].(string)
	if !ok {
		return Signal{Name: "minimum_engine_target", Passed: false, Detail: "no engines.node field"}
	}
	major := leadingMajorVersion(node)
	if major >= minMajor {
		return Signal{Name: "minimum_engine_target", Passed: true, Detail: node}
	}
	return Signal{Name: "minimum_engine_target", Passed: false, Detail: node + " below threshold"}
}

func leadingMajorVersion(s string) int {
	digits := strings.Builder{}
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
			continue
		}
		if digits.Len() > 0 {
			break
		}
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}

func checkModernTestRunner(root string, pkg map[string]any) Signal {
	for _, marker := range []string{"vitest.config.ts", "vitest.config.js"} {
		if fileExists(filepath.Join(root, marker)) {
			return Signal{Name: "modern_test_runner", Passed: true, Detail: marker + " present"}
		}
	}
	if pkg != nil {
		if deps, ok := pkg["devDependencies"].(map[string]any); ok {
			if _, ok := deps["vitest"]; ok {
				return Signal{Name: "modern_test_runner", Passed: true, Detail: "vitest in devDependencies"}
			}
		}
	}
	return Signal{Name: "modern_test_runner", Passed: false, Detail: "no modern test runner detected"}
}
