// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSelection is returned when a selection string lacks a provider
// or model part.
var ErrInvalidSelection = errors.New("invalid model selection")

// Selection is the caller's chosen provider and model. The model string is
// opaque and passed through to the upstream API.
type Selection struct {
	Provider ID     `json:"provider"`
	Model    string `json:"model"`
}

// ParseSelection parses "provider:model". Only the first colon separates the
// two parts.
func ParseSelection(s string) (Selection, error) {
	p, model, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || p == "" || model == "" {
		return Selection{}, fmt.Errorf("%w: %q (want provider:model)", ErrInvalidSelection, s)
	}
	id, err := Parse(p)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Provider: id, Model: model}, nil
}

// String renders the selection in "provider:model" form.
func (s Selection) String() string {
	return string(s.Provider) + ":" + s.Model
}

// IsZero reports whether no selection has been made.
func (s Selection) IsZero() bool {
	return s.Provider == "" && s.Model == ""
}
