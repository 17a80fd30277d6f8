package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/domain/records"
	"github.com/andreibyf/aishacrm-2-sub007/modules/crm/services"
	"github.com/andreibyf/aishacrm-2-sub007/pkg/outbox"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"explicit", withCode(exitDB, errors.New("boom")), exitDB},
		{"not found", fmt.Errorf("convert: %w", services.ErrNotFound), exitNotFound},
		{"already converted", services.ErrAlreadyConverted, exitConflict},
		{"immutable", services.ErrImmutableRecord, exitConflict},
		{"invalid transition", services.ErrInvalidTransition, exitValidation},
		{"invalid input", services.ErrInvalidInput, exitValidation},
		{"other", errors.New("boom"), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, exitCode(tc.err))
		})
	}
	require.NoError(t, withCode(exitDB, nil))
}

func TestParseID(t *testing.T) {
	_, err := parseID("tenant", "")
	require.Equal(t, exitUsage, exitCode(err))

	_, err = parseID("tenant", "nope")
	require.Equal(t, exitValidation, exitCode(err))
	require.ErrorContains(t, err, "--tenant")

	id, err := parseID("tenant", " 7b0c2a5e-3f0b-4f69-9c53-4f3f3a0f8d11 ")
	require.NoError(t, err)
	require.Equal(t, "7b0c2a5e-3f0b-4f69-9c53-4f3f3a0f8d11", id.String())

	opt, err := parseOptionalID("account", "  ")
	require.NoError(t, err)
	require.Nil(t, opt)

	require.Nil(t, optionalString("   "))
	require.Equal(t, "Acme", *optionalString(" Acme "))
}

func TestLifecycleTarget(t *testing.T) {
	tenant := "7b0c2a5e-3f0b-4f69-9c53-4f3f3a0f8d11"
	id := "0d6f1f8e-5c1a-4c55-8a4c-2f8e0b7e9a10"

	typ, _, _, err := lifecycleTarget("Sourcing_Record", tenant, id)
	require.NoError(t, err)
	require.Equal(t, records.TypeSourcingRecord, typ)

	_, _, _, err = lifecycleTarget("contact", tenant, id)
	require.Equal(t, exitUsage, exitCode(err))

	_, _, _, err = lifecycleTarget("lead", tenant, "")
	require.Equal(t, exitUsage, exitCode(err))
}

func TestWriteResult(t *testing.T) {
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })

	require.NoError(t, writeResult("refresh", time.Now(), map[string]int{"refreshed": 3}))

	var out struct {
		Command string         `json:"command"`
		Result  map[string]int `json:"result"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Equal(t, "refresh", out.Command)
	require.Equal(t, 3, out.Result["refreshed"])
}

func TestRefresh_FlagValidationRunsBeforeBootstrap(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"refresh", "--all", "--tenant", "7b0c2a5e-3f0b-4f69-9c53-4f3f3a0f8d11"})
	err := cmd.Execute()
	require.Equal(t, exitUsage, exitCode(err))

	cmd = newRootCmd()
	cmd.SetArgs([]string{"convert-lead", "--tenant", "7b0c2a5e-3f0b-4f69-9c53-4f3f3a0f8d11", "--lead", "bad"})
	err = cmd.Execute()
	require.Equal(t, exitValidation, exitCode(err))

	cmd = newRootCmd()
	cmd.SetArgs([]string{"archive", "--type", "account", "--tenant", "x", "--id", "y"})
	err = cmd.Execute()
	require.Equal(t, exitUsage, exitCode(err))
}

func TestOutputShapes_FlattenResults(t *testing.T) {
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })

	require.NoError(t, writeResult("outbox drain", time.Now(), drainOutput{
		Table:       "public.crm_outbox",
		BatchResult: outbox.BatchResult{Claimed: 4, Dispatched: 2, Published: 4, Coalesced: 2},
	}))

	var out struct {
		Result map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Equal(t, "public.crm_outbox", out.Result["table"])
	require.InDelta(t, 2, out.Result["coalesced"], 0)
	require.InDelta(t, 4, out.Result["published"], 0)
}

func TestRootCommand_Tree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"serve"}, {"migrate"}, {"refresh"}, {"convert-lead"}, {"promote-source"},
		{"archive"}, {"delete"}, {"cascade-assignee"},
		{"report", "conversions"}, {"report", "transitions"},
		{"outbox", "drain"}, {"outbox", "clean"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		require.Equal(t, path[len(path)-1], cmd.Name())
	}
}
