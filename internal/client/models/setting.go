package models

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tradebook/internal/common"
)

// Setting is a free-form key/value preference. Key is the row identifier.
type Setting struct {
	Key   string
	Value string
}

func (s Setting) Validate() error {
	if strings.TrimSpace(s.Key) == "" {
		return fmt.Errorf("%w: setting key is empty", common.ErrValidation)
	}
	return nil
}

type SettingPatch struct {
	Value *string
}

func (p SettingPatch) Apply(s Setting) Setting {
	setString(&s.Value, p.Value)
	return s
}

// SettingsMap indexes settings by key; later duplicates win.
func SettingsMap(settings []Setting) map[string]string {
	m := make(map[string]string, len(settings))
	for _, s := range settings {
		m[s.Key] = s.Value
	}
	return m
}
