// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds per-panel state as explicit objects instead of
// process globals.
//
// A Session owns everything one task pane mutates: the conversation history,
// the pending attachments, the model selection, the ambient input key and
// the host collaborator. The in-flight guard (TryBegin/End) serializes sends
// so history and attachments are only touched by one operation at a time.
//
// # Key Types
//
//   - Session: state of one panel
//   - Manager: sessions keyed by id, expired after an idle timeout
//
// # Usage
//
//	mgr := session.NewManager(session.DefaultConfig())
//	s, _ := mgr.GetOrCreate(id)
//	if !s.TryBegin() {
//	    return ErrBusy
//	}
//	defer s.End()
//
// Sessions live in memory only; nothing survives a restart.
package session
