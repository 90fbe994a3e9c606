// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/beevik/prefixtree/v2"
	"github.com/pkg/errors"
)

type settings struct {
	HexMode            bool   `doc:"hexadecimal input mode"`
	MemDumpBytes       int    `doc:"default number of memory bytes to dump"`
	DisasmLines        int    `doc:"default number of lines to disassemble"`
	StepLinesToDisplay int    `doc:"max lines to disassemble when stepping"`
	RunBudget          int    `doc:"cycles executed per slice by run"`
	NextDisasmAddr     uint16 `doc:"address of next disassembly"`
	NextMemDumpAddr    uint16 `doc:"address of next memory dump"`
}

func newSettings() *settings {
	return &settings{
		HexMode:            false,
		MemDumpBytes:       64,
		DisasmLines:        10,
		StepLinesToDisplay: 20,
		RunBudget:          10000,
	}
}

type settingsField struct {
	name  string
	index int
	kind  reflect.Kind
	typ   reflect.Type
	doc   string
}

var (
	settingsTree   = prefixtree.New[*settingsField]()
	settingsFields []settingsField
)

func init() {
	settingsType := reflect.TypeOf(settings{})
	settingsFields = make([]settingsField, settingsType.NumField())
	for i := range settingsFields {
		f := settingsType.Field(i)
		doc, _ := f.Tag.Lookup("doc")
		settingsFields[i] = settingsField{
			name:  f.Name,
			index: i,
			kind:  f.Type.Kind(),
			typ:   f.Type,
			doc:   doc,
		}
		settingsTree.Add(strings.ToLower(f.Name), &settingsFields[i])
	}
}

// Display writes every setting and its documentation to 'w'.
func (s *settings) Display(w io.Writer) {
	value := reflect.ValueOf(s).Elem()
	for i, f := range settingsFields {
		v := value.Field(i)
		var line string
		switch f.kind {
		case reflect.Uint16:
			line = fmt.Sprintf("    %-18s $%04X", f.name, uint16(v.Uint()))
		default:
			line = fmt.Sprintf("    %-18s %v", f.name, v)
		}
		fmt.Fprintf(w, "%-30s (%s)\n", line, f.doc)
	}
}

// Find the setting whose name is uniquely prefixed by 'key'.
func (s *settings) lookup(key string) (*settingsField, error) {
	f, err := settingsTree.FindValue(strings.ToLower(key))
	if err != nil {
		return nil, errors.Wrapf(err, "setting '%s'", key)
	}
	return f, nil
}

// Kind returns the kind of the setting matching 'key', or reflect.Invalid
// if there is none.
func (s *settings) Kind(key string) reflect.Kind {
	f, err := s.lookup(key)
	if err != nil {
		return reflect.Invalid
	}
	return f.kind
}

// Set assigns 'value' to the setting matching 'key'. The value must be
// convertible to the setting's type.
func (s *settings) Set(key string, value any) error {
	f, err := s.lookup(key)
	if err != nil {
		return err
	}

	vIn := reflect.ValueOf(value)
	if (vIn.Kind() == reflect.Bool) != (f.kind == reflect.Bool) || !vIn.Type().ConvertibleTo(f.typ) {
		return errors.Errorf("invalid value type for %s", f.name)
	}

	vOut := reflect.ValueOf(s).Elem().Field(f.index)
	vOut.Set(vIn.Convert(f.typ))
	return nil
}
