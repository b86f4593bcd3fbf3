// Package mysqlr is a thin layer over database/sql and go-sql-driver/mysql
// for MySQL's "insert ... on duplicate key update" idiom.
//
// A Builder renders upsert statements, including insert-select upserts that
// alias the derived table's columns positionally. A Handler runs statements
// over one held connection, sends row batches as a single multi-row insert
// and retries lost connections and lock wait timeouts with exponential
// backoff:
//
//	h, err := mysqlr.Open(ctx, mysqlr.Merge(mysqlr.DefaultOptions(), mysqlr.Override{Database: "sales"}))
//	if err != nil {
//		return err
//	}
//	defer h.Close()
//
//	err = h.InsertOnDuplicateKeyUpdate(ctx, "people",
//		[]string{"id", "first_name", "last_name"}, []string{"id"},
//		[]mysqlr.Row{{1, "Ann", "Awk"}, {2, "Bob", "Bash"}}, "")
package mysqlr
