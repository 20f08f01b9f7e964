package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xraph/caseflow/checkpoint"
	"github.com/xraph/caseflow/store"
	"github.com/xraph/caseflow/store/postgres"
	"github.com/xraph/caseflow/store/storetest"
)

// These tests need a reachable database; set CASEFLOW_TEST_POSTGRES_DSN to run them.
func TestConformance(t *testing.T) {
	dsn := os.Getenv("CASEFLOW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CASEFLOW_TEST_POSTGRES_DSN not set")
	}

	for _, codec := range []string{checkpoint.CodecNameJSON, checkpoint.CodecNameMsgpack} {
		t.Run(codec, func(t *testing.T) {
			storetest.Run(t, func(t *testing.T) store.Store {
				ctx := context.Background()
				s, err := postgres.New(ctx, dsn, postgres.WithCodec(checkpoint.GetCodec(codec)))
				require.NoError(t, err)
				require.NoError(t, s.Migrate(ctx))
				_, err = s.Pool().Exec(ctx, `TRUNCATE caseflow_checkpoints, caseflow_sequences`)
				require.NoError(t, err)
				t.Cleanup(func() { _ = s.Close() })
				return s
			})
		})
	}
}
