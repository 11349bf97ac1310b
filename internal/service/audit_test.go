package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArchiveKeeper/internal/apperr"
	"ArchiveKeeper/internal/model"
	"ArchiveKeeper/internal/repo"
)

func TestAuditService_AppendValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		action model.AuditAction
		res    model.AuditResource
		id     string
	}{
		{"unknown action", "PURGE", model.ResourceFile, "f1"},
		{"unknown resource", model.ActionRead, "blob", "f1"},
		{"empty id", model.ActionRead, model.ResourceFile, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.audit.Append(ctx, nil, tc.action, tc.res, tc.id, AuditDetails{})
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestAuditService_QueryByResourceNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	actor := int64p(9)

	actions := []model.AuditAction{model.ActionCreate, model.ActionRead, model.ActionUpdate, model.ActionDownload}
	for _, a := range actions {
		_, err := env.audit.Append(ctx, actor, a, model.ResourceFile, "res-1", AuditDetails{Reason: string(a)})
		require.NoError(t, err)
	}
	_, err := env.audit.Append(ctx, nil, model.ActionRead, model.ResourceFile, "res-2", AuditDetails{})
	require.NoError(t, err)

	first, total, err := env.audit.QueryByResource(ctx, "res-1", 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, first, 4)
	for i, e := range first {
		assert.Equal(t, actions[len(actions)-1-i], e.Action)
		assert.True(t, e.Success)
	}

	// повторное чтение возвращает те же записи без изменений
	second, _, err := env.audit.QueryByResource(ctx, "res-1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	page, total, err := env.audit.QueryByActor(ctx, 9, 2, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	require.Len(t, page, 2)
	assert.Equal(t, model.ActionUpdate, page[0].Action)

	_, total, err = env.audit.QueryRecent(ctx, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
}

func TestAuditService_DefaultLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < defaultLedgerLimit+5; i++ {
		_, err := env.audit.Append(ctx, nil, model.ActionRead, model.ResourceFile, fmt.Sprintf("r-%d", i), AuditDetails{})
		require.NoError(t, err)
	}
	entries, total, err := env.audit.QueryRecent(ctx, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, defaultLedgerLimit+5, total)
	assert.Len(t, entries, defaultLedgerLimit)

	assert.Equal(t, maxLedgerLimit, clampLimit(10_000, defaultLedgerLimit, maxLedgerLimit))
	assert.Equal(t, 7, clampLimit(7, defaultLedgerLimit, maxLedgerLimit))
}

func TestAuditService_TxRollsBackWithPrimaryOperation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := env.store.InTx(ctx, func(r *repo.Repositories) error {
		if _, err := env.audit.Tx(r).Append(ctx, nil, model.ActionCreate, model.ResourceFile, "tx-1", AuditDetails{}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, total, err := env.audit.QueryByResource(ctx, "tx-1", 0, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestAuditService_RecordSwallowsErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		env.audit.Record(ctx, nil, "BOGUS", model.ResourceFile, "r", AuditDetails{})
	})
	env.audit.Record(ctx, nil, model.ActionRead, model.ResourceFile, "r", AuditDetails{ErrorMessage: "denied"})

	entries, total, err := env.audit.QueryByResource(ctx, "r", 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "denied", entries[0].ErrorMessage)
}

func TestAuditService_UserSnapshotsEncryptPII(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	e, err := env.audit.Append(ctx, nil, model.ActionUpdate, model.ResourceUser, "alice", AuditDetails{
		NewValue: map[string]any{"login": "alice", "email": "alice@example.org"},
	})
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(e.NewValue), "alice@example.org"))

	var snap map[string]any
	require.NoError(t, json.Unmarshal(e.NewValue, &snap))
	plain, err := env.audit.enc.DecryptFields(snap, piiFields...)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.org", plain["email"])
	assert.Equal(t, "alice", plain["login"])

	_, _, err = env.audit.Search(ctx, AuditCriteria{Action: "NOPE"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
