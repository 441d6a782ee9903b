// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package config loads tool configs. The canonical form is JSON (with # comment
// lines); YAML and TOML files are converted to JSON first, so a single set of
// json tags describes the config in all formats.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/syzformat/pkg/osutil"
	"sigs.k8s.io/yaml"
)

type Format int

const (
	JSON Format = iota
	YAML
	TOML
)

// FormatOf guesses the config format from the file extension.
func FormatOf(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return YAML
	case ".toml":
		return TOML
	}
	return JSON
}

func LoadFile(filename string, cfg any) error {
	if filename == "" {
		return fmt.Errorf("no config file specified")
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadFormat(data, FormatOf(filename), cfg)
}

func LoadFormat(data []byte, format Format, cfg any) error {
	var err error
	switch format {
	case YAML:
		if data, err = yaml.YAMLToJSON(data); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	case TOML:
		var raw map[string]any
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
		if data, err = json.Marshal(raw); err != nil {
			return err
		}
	}
	return LoadData(data, cfg)
}

var commentRe = regexp.MustCompile(`(^|\n)\s*#[^\n]*`)

func LoadData(data []byte, cfg any) error {
	if typ := reflect.TypeOf(cfg); typ == nil || typ.Kind() != reflect.Ptr || typ.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config type is not pointer to struct")
	}
	data = commentRe.ReplaceAll(data, nil)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func SaveFile(filename string, cfg any) error {
	var data []byte
	var err error
	switch FormatOf(filename) {
	case YAML:
		data, err = yaml.Marshal(cfg)
	case TOML:
		data, err = marshalTOML(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "\t")
	}
	if err != nil {
		return err
	}
	return osutil.WriteFile(filename, data)
}

// marshalTOML goes through JSON so that json tags apply to TOML as well.
func marshalTOML(cfg any) ([]byte, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := toml.NewEncoder(buf).Encode(dropNulls(raw)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// dropNulls removes null values which TOML can't represent.
func dropNulls(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for k, elem := range v {
			if elem == nil {
				delete(v, k)
				continue
			}
			v[k] = dropNulls(elem)
		}
	case []any:
		for i, elem := range v {
			v[i] = dropNulls(elem)
		}
	}
	return v
}

// MergeJSONData overlays right on top of left, recursing into objects.
func MergeJSONData(left, right []byte) ([]byte, error) {
	vLeft := map[string]any{}
	if err := json.Unmarshal(left, &vLeft); err != nil {
		return nil, fmt.Errorf("failed to unmarshal left: %w", err)
	}
	vRight := map[string]any{}
	if len(right) != 0 {
		if err := json.Unmarshal(right, &vRight); err != nil {
			return nil, fmt.Errorf("failed to unmarshal right: %w", err)
		}
	}
	return json.Marshal(mergeRecursive(vLeft, vRight))
}

func mergeRecursive(left, right any) any {
	l, lok := left.(map[string]any)
	r, rok := right.(map[string]any)
	if !lok || !rok {
		return right
	}
	for k, v := range r {
		if prev, ok := l[k]; ok {
			l[k] = mergeRecursive(prev, v)
		} else {
			l[k] = v
		}
	}
	return l
}
