// Package config holds build constants and the optional hemlock.yaml
// project configuration.
//
// The project file lets a script directory pin interpreter options without
// repeating CLI flags:
//
//	trace: false
//	dump_bytecode: false
//	stack_size: 4096
//	max_frames: 2048
//	args:
//	  - --verbose
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Project represents the parsed hemlock.yaml configuration.
type Project struct {
	// Trace enables per-instruction execution tracing.
	Trace bool `yaml:"trace,omitempty"`

	// DumpBytecode prints the disassembled program before running it.
	DumpBytecode bool `yaml:"dump_bytecode,omitempty"`

	// StackSize is the requested initial value-stack size (elements). It
	// is validated but not applied: the VM always starts with its built-in
	// stack size.
	StackSize int `yaml:"stack_size,omitempty"`

	// MaxFrames is the requested maximum call depth. It is validated but
	// not applied: the VM's call-depth limit is a fixed constant.
	MaxFrames int `yaml:"max_frames,omitempty"`

	// Args are prepended to the script's argument list.
	Args []string `yaml:"args,omitempty"`
}

// LoadProject reads hemlock.yaml from dir. A missing file is not an error;
// it returns an empty Project.
func LoadProject(dir string) (*Project, error) {
	path := filepath.Join(dir, ProjectFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Project{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if p.StackSize < 0 {
		return nil, fmt.Errorf("%s: stack_size must be positive", path)
	}
	if p.MaxFrames < 0 {
		return nil, fmt.Errorf("%s: max_frames must be positive", path)
	}
	return &p, nil
}
