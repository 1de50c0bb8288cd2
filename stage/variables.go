// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"fmt"
	"regexp"
	"strings"
)

// variablePattern matches ${name} references. Bare $name is left
// alone.
var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Expand replaces ${name} references in input with values from
// variables. Every unresolved name is listed in the error.
func Expand(input string, variables map[string]string) (string, error) {
	var unresolved []string
	result := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[2 : len(match)-1]
		if value, exists := variables[name]; exists {
			return value
		}
		unresolved = append(unresolved, name)
		return match
	})
	if len(unresolved) > 0 {
		return "", fmt.Errorf("unresolved variables: %s", strings.Join(unresolved, ", "))
	}
	return result, nil
}

// ExpandSpec returns a copy of spec with variables substituted in its
// args, working directory, expected output, and input paths and names.
// The original is not modified.
func ExpandSpec(spec Spec, variables map[string]string) (Spec, error) {
	var err error
	expand := func(field string, value *string) {
		if err != nil {
			return
		}
		var expanded string
		if expanded, err = Expand(*value, variables); err != nil {
			err = fmt.Errorf("%s: %w", field, err)
			return
		}
		*value = expanded
	}

	spec.Args = append([]string(nil), spec.Args...)
	for index := range spec.Args {
		expand(fmt.Sprintf("args[%d]", index), &spec.Args[index])
	}
	expand("workingDirectory", &spec.WorkingDirectory)
	expand("expectedOutput", &spec.ExpectedOutput)

	spec.Inputs = append([]Mount(nil), spec.Inputs...)
	for index := range spec.Inputs {
		expand(fmt.Sprintf("inputs[%d].path", index), &spec.Inputs[index].Path)
		expand(fmt.Sprintf("inputs[%d].root", index), &spec.Inputs[index].Root)
		expand(fmt.Sprintf("inputs[%d].name", index), &spec.Inputs[index].Name)
	}
	if err != nil {
		return Spec{}, fmt.Errorf("stage %q: %w", spec.Name, err)
	}
	return spec, nil
}
