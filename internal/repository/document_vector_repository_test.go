package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kb-vectorizer/internal/model"
	"kb-vectorizer/internal/repository"
	"kb-vectorizer/internal/repository/repotest"
)

func vectorsFor(doc *model.Document, contents ...string) []*model.DocumentVector {
	out := make([]*model.DocumentVector, 0, len(contents))
	for i, c := range contents {
		out = append(out, &model.DocumentVector{
			DocumentID:     doc.ID,
			OrganizationID: doc.OrganizationID,
			ChunkIndex:     i,
			TotalChunks:    len(contents),
			Content:        c,
			Embedding:      []float32{float32(i), 0.5},
			ContentHash:    model.ContentHash(c),
			FileName:       doc.Title,
			FileType:       doc.FileType,
			VectorizedAt:   time.Now(),
			Model:          "test-model",
		})
	}
	return out
}

func TestReplaceForDocumentReplacesWholeSet(t *testing.T) {
	db := repotest.NewDB(t)
	repo := repository.NewDocumentVectorRepository(db)
	ctx := context.Background()
	doc := repotest.CreateDocument(t, db, "text")
	other := repotest.CreateDocument(t, db, "other")

	otherToken := repotest.Claim(t, db, other.ID)
	token := repotest.Claim(t, db, doc.ID)

	require.NoError(t, repo.ReplaceForDocument(ctx, other.ID, otherToken, vectorsFor(other, "o0")))
	require.NoError(t, repo.ReplaceForDocument(ctx, doc.ID, token, vectorsFor(doc, "a", "b", "c")))
	require.NoError(t, repo.ReplaceForDocument(ctx, doc.ID, token, vectorsFor(doc, "x", "y")))

	rows, err := repo.FindByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for i, row := range rows {
		assert.Equal(t, i, row.ChunkIndex)
		assert.Equal(t, 2, row.TotalChunks)
		assert.Equal(t, []float32{float32(i), 0.5}, row.Embedding)
	}
	assert.Equal(t, "x", rows[0].Content)

	others, err := repo.FindByDocumentID(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, others, 1, "other documents are untouched")
}

func TestReplaceForDocumentRollsBackOnInsertFailure(t *testing.T) {
	db := repotest.NewDB(t)
	repo := repository.NewDocumentVectorRepository(db)
	ctx := context.Background()
	doc := repotest.CreateDocument(t, db, "text")
	token := repotest.Claim(t, db, doc.ID)

	require.NoError(t, repo.ReplaceForDocument(ctx, doc.ID, token, vectorsFor(doc, "a", "b")))

	// duplicate chunk index violates the unique index
	bad := vectorsFor(doc, "x", "y")
	bad[1].ChunkIndex = 0
	require.Error(t, repo.ReplaceForDocument(ctx, doc.ID, token, bad))

	rows, err := repo.FindByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2, "previous set survives a failed replace")
	assert.Equal(t, "a", rows[0].Content)
}

func TestDeleteByDocumentID(t *testing.T) {
	db := repotest.NewDB(t)
	repo := repository.NewDocumentVectorRepository(db)
	ctx := context.Background()
	doc := repotest.CreateDocument(t, db, "text")
	token := repotest.Claim(t, db, doc.ID)

	require.NoError(t, repo.ReplaceForDocument(ctx, doc.ID, token, vectorsFor(doc, "a")))
	require.NoError(t, repo.DeleteByDocumentID(ctx, doc.ID))

	rows, err := repo.FindByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReplaceForDocumentRequiresClaimOwner(t *testing.T) {
	db := repotest.NewDB(t)
	repo := repository.NewDocumentVectorRepository(db)
	docs := repository.NewDocumentRepository(db)
	ctx := context.Background()
	doc := repotest.CreateDocument(t, db, "text")

	assert.ErrorIs(t, repo.ReplaceForDocument(ctx, doc.ID, "", vectorsFor(doc, "a")), repository.ErrStatusConflict)

	token := repotest.Claim(t, db, doc.ID)
	require.NoError(t, repo.ReplaceForDocument(ctx, doc.ID, token, vectorsFor(doc, "a")))
	require.NoError(t, docs.MarkCompleted(ctx, doc.ID, token, 1, time.Now()))

	// 完成后令牌失效
	assert.ErrorIs(t, repo.ReplaceForDocument(ctx, doc.ID, token, vectorsFor(doc, "x", "y")), repository.ErrStatusConflict)
	rows, err := repo.FindByDocumentID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
