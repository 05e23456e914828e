package rls_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/veildb/veil"
	"github.com/veildb/veil/docstore"
	"github.com/veildb/veil/rls"
)

func newBenchStore() (*docstore.Store, error) {
	return docstore.Open(":memory:", docstore.WithSchema(&docstore.Schema{
		Tables: []docstore.TableSchema{{Name: "notes"}},
	}))
}

func BenchmarkFilteredCollect(b *testing.B) {
	for _, size := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("%d", size), func(b *testing.B) {
			store, err := newBenchStore()
			if err != nil {
				b.Fatal(err)
			}
			b.Cleanup(func() { _ = store.Close() })
			ctx := context.Background()
			for i := 0; i < size; i++ {
				_, err := store.Insert(ctx, "notes", veil.Document{
					"owner": fmt.Sprintf("user%d", i%10),
					"title": fmt.Sprintf("note %d", i),
				})
				if err != nil {
					b.Fatal(err)
				}
			}
			reader := rls.NewReader(store, ownerRegistry())
			ctx = withUser(ctx, "user3")
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := reader.Query("notes").Collect(ctx); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
