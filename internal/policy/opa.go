package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// packageNameRe extracts the declared package name from a Rego program, e.g.
// "package match" or "package catalog.sources.billing".
var packageNameRe = regexp.MustCompile(`package\s+([a-zA-Z0-9_.]+)`)

const defaultPackageName = "match"

// opaEvalResult mirrors `opa eval --format json`'s output shape:
//
//	{"result": [{"expressions": [{"value": true, ...}]}]}
type opaEvalResult struct {
	Result []struct {
		Expressions []struct {
			Value any `json:"value"`
		} `json:"expressions"`
	} `json:"result"`
}

// Evaluator wraps an OPA binary for evaluating Rego policy programs.
type Evaluator struct {
	opaPath string
	logger  *slog.Logger
}

// NewEvaluator constructs an Evaluator bound to the given OPA binary path.
func NewEvaluator(opaPath string, logger *slog.Logger) *Evaluator {
	return &Evaluator{opaPath: opaPath, logger: logger}
}

// EvaluatePolicy runs an ad hoc Rego program against input, returning the
// boolean value of the program's `allow` rule.
//
// If program has no package declaration, "package match" is prepended and
// the query targets data.match.allow. Otherwise the package name is
// extracted by regex and the query targets data.<package>.allow.
//
// The policy and input are written to temp files (OPA only reads programs
// and input from disk or stdin); both are removed on every exit path via
// defer, mirroring the original Python implementation's try/finally cleanup.
func (e *Evaluator) EvaluatePolicy(ctx context.Context, program string, input map[string]any, timeout time.Duration) (bool, error) {
	if e.opaPath == "" {
		return false, fmt.Errorf("%w: opa binary is not configured", ErrPolicyEvaluationFailed)
	}
	if strings.TrimSpace(program) == "" {
		// An empty body under "package match" evaluates allow as undefined,
		// i.e. deny — not an evaluator error.
		return false, nil
	}

	finalProgram, packageName := normalizeProgram(program)
	query := fmt.Sprintf("data.%s.allow", packageName)

	policyFile, err := os.CreateTemp("", "catalog-policy-*.rego")
	if err != nil {
		return false, fmt.Errorf("%w: create policy temp file: %v", ErrPolicyEvaluationFailed, err)
	}
	defer os.Remove(policyFile.Name())

	if _, err := policyFile.WriteString(finalProgram); err != nil {
		_ = policyFile.Close()
		return false, fmt.Errorf("%w: write policy temp file: %v", ErrPolicyEvaluationFailed, err)
	}
	if err := policyFile.Close(); err != nil {
		return false, fmt.Errorf("%w: close policy temp file: %v", ErrPolicyEvaluationFailed, err)
	}

	inputFile, err := os.CreateTemp("", "catalog-policy-input-*.json")
	if err != nil {
		return false, fmt.Errorf("%w: create input temp file: %v", ErrPolicyEvaluationFailed, err)
	}
	defer os.Remove(inputFile.Name())

	inputBytes, err := json.Marshal(input)
	if err != nil {
		_ = inputFile.Close()
		return false, fmt.Errorf("%w: encode input: %v", ErrInvalidInput, err)
	}
	if _, err := inputFile.Write(inputBytes); err != nil {
		_ = inputFile.Close()
		return false, fmt.Errorf("%w: write input temp file: %v", ErrPolicyEvaluationFailed, err)
	}
	if err := inputFile.Close(); err != nil {
		return false, fmt.Errorf("%w: close input temp file: %v", ErrPolicyEvaluationFailed, err)
	}

	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(evalCtx, e.opaPath,
		"eval", "--format", "json",
		"-d", policyFile.Name(),
		"-i", inputFile.Name(),
		query,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if evalCtx.Err() != nil {
		return false, fmt.Errorf("%w: after %s", ErrPolicyTimeout, timeout)
	}
	if runErr != nil {
		e.logger.Error("policy: opa eval failed", "error", runErr, "stderr", stderr.String())
		return false, fmt.Errorf("%w: %v: %s", ErrPolicyEvaluationFailed, runErr, stderr.String())
	}

	var out opaEvalResult
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return false, fmt.Errorf("%w: parse opa output: %v", ErrPolicyEvaluationFailed, err)
	}

	if len(out.Result) == 0 || len(out.Result[0].Expressions) == 0 {
		// Undefined rule evaluates as deny, not error.
		return false, nil
	}

	allow, _ := out.Result[0].Expressions[0].Value.(bool)
	return allow, nil
}

// Healthy checks that the configured OPA binary exists and is executable.
// It does not invoke OPA — `opa version` would confirm more, but a stat is
// enough to catch the common misconfiguration (wrong path, binary removed)
// without paying a subprocess spawn on every health check.
func (e *Evaluator) Healthy(ctx context.Context) error {
	if e.opaPath == "" {
		return fmt.Errorf("%w: opa binary is not configured", ErrPolicyEvaluationFailed)
	}
	info, err := os.Stat(e.opaPath)
	if err != nil {
		return fmt.Errorf("%w: stat opa binary: %v", ErrPolicyEvaluationFailed, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: opa path %q is a directory", ErrPolicyEvaluationFailed, e.opaPath)
	}
	return nil
}

// normalizeProgram returns the program with a package declaration guaranteed,
// and the package name the query should target.
func normalizeProgram(program string) (finalProgram, packageName string) {
	if !bytes.Contains([]byte(program), []byte("package ")) {
		return fmt.Sprintf("package %s\n\n%s", defaultPackageName, program), defaultPackageName
	}

	if m := packageNameRe.FindStringSubmatch(program); len(m) == 2 {
		return program, m[1]
	}
	return program, defaultPackageName
}
