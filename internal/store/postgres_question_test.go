package store

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/qforge/internal/platform/database/dbtest"
)

func TestPostgresQuestionRepo(t *testing.T) {
	db := dbtest.New(t)
	ctx := t.Context()

	repo, err := NewPostgresQuestionRepo(db.Pool)
	require.NoError(t, err)
	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.EnsureSchema(ctx), "schema creation is idempotent")

	meta := QuestionMeta{RequestID: "r-1", Course: "ba_english", Subject: "Literature", Topic: "Shakespeare", Semester: 2}
	id, err := repo.Save(ctx, StoredQuestion{
		Meta:               meta,
		QuestionType:       "descriptive",
		DescriptiveSubtype: "long_essay",
		Text:               "Discuss the role of fate in Macbeth.",
		Body:               json.RawMessage(`{"question":"Discuss the role of fate in Macbeth.","marks":15}`),
	})
	require.NoError(t, err)

	_, err = repo.Save(ctx, StoredQuestion{Meta: meta, QuestionType: "mcq", Text: "Who wrote Hamlet?", Body: json.RawMessage(`{}`)})
	require.NoError(t, err)

	_, err = repo.Save(ctx, StoredQuestion{Meta: meta, QuestionType: "mcq", Text: "no body"})
	require.Error(t, err)

	got, err := repo.List(ctx, QuestionFilter{Course: "ba_english", QuestionType: "descriptive"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, StatusPending, got[0].Status)
	assert.Equal(t, 2, got[0].Meta.Semester)
	assert.JSONEq(t, `{"question":"Discuss the role of fate in Macbeth.","marks":15}`, string(got[0].Body))

	require.NoError(t, repo.SetStatus(ctx, id, StatusApproved))
	n, err := repo.Count(ctx, QuestionFilter{Topic: "Shakespeare", Status: StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = repo.SetStatus(ctx, "00000000-0000-0000-0000-000000000000", StatusRejected)
	assert.True(t, errors.Is(err, ErrQuestionNotFound))
	err = repo.SetStatus(ctx, "not-a-uuid", StatusRejected)
	assert.True(t, errors.Is(err, ErrQuestionNotFound))

	limited, err := repo.List(ctx, QuestionFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
