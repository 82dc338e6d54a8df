package internal

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/dgraph-io/badger/v4"
)

const inspectPage = `<!DOCTYPE html>
<html>
<head>
<title>dm-relay store</title>
<style>
body { font-family: monospace; background: #111; color: #ddd; margin: 2em; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 4px 12px; border-bottom: 1px solid #333; }
th { color: #6c6; }
.stats { margin-bottom: 1.5em; color: #9cf; }
</style>
</head>
<body>
<div class="stats">
{{range $k, $v := .Stats}}<span>{{$k}}={{$v}}&nbsp;&nbsp;</span>{{end}}
</div>
<form method="get"><input name="prefix" value="{{.Prefix}}"><button>scan</button></form>
<table>
<tr><th>Key</th><th>Kind</th><th>Timestamp</th><th>Parties</th><th>Detail</th></tr>
{{range .Items}}
<tr><td>{{.Key}}</td><td>{{.Kind}}</td><td>{{.Timestamp}}</td><td>{{.Parties}}</td><td>{{.Detail}}</td></tr>
{{end}}
</table>
</body>
</html>`

// InspectRow is one rendered store entry. Mappers turn a raw key/value
// pair into something a human can scan.
type InspectRow struct {
	Key       string
	Kind      string
	Timestamp string
	Parties   string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow

type StatsProvider func() map[string]any

type pageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// StartDebugServer serves a browsable view of the Badger store on a
// side port. Development aid only, never part of the public surface.
func StartDebugServer(db *badger.DB, port int, mapper RowMapper, statsProvider StatsProvider) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.New("inspect").Parse(inspectPage))

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "msg:"
		}

		data := pageData{Prefix: prefix, Stats: make(map[string]any)}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), mux)
	}()
}
