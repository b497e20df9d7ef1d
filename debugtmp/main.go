package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"

	"go.uber.org/zap"

	"github.com/strata-api/strata/pkg/entity"
	"github.com/strata-api/strata/pkg/store"
	"github.com/strata-api/strata/pkg/web/router"
)

type rt struct {
	reg   *entity.Registry
	store *store.Store
	sess  entity.Session
}

func (r *rt) Session(ctx context.Context) entity.Session {
	if r.sess == nil {
		r.sess = r.store.Session()
	}
	return r.sess
}
func (r *rt) Registry() *entity.Registry { return r.reg }
func (r *rt) Logger() *zap.Logger        { return zap.NewNop() }

func do(srv *httptest.Server, method, path string, body interface{}) (int, string) {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req, _ := http.NewRequest(method, srv.URL+path, reader)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err.Error()
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func main() {
	reg := entity.NewRegistry()
	_, err := reg.Register(entity.Definition{
		Name: "Board",
		Fields: []entity.Field{
			{Name: "name", Type: entity.TypeString},
			{Name: "items", Type: entity.ListOf(entity.TypeString), Default: []interface{}{"a", "b", "c"}},
			{Name: "scores", Type: entity.MapOf(entity.TypeString, entity.TypeInt)},
		},
	})
	if err != nil {
		fmt.Println("register:", err)
		os.Exit(1)
	}

	st, err := store.Open("sqlite3", ":memory:", zap.NewNop())
	if err != nil {
		fmt.Println("open:", err)
		os.Exit(1)
	}
	st.DB().SetMaxOpenConns(1)
	defer st.Close()
	if err := st.Migrate(context.Background(), reg); err != nil {
		fmt.Println("migrate:", err)
		os.Exit(1)
	}

	runtime := &rt{reg: reg, store: st}
	r, _ := router.NewBuilder(reg, runtime, router.Config{}).Build()
	srv := httptest.NewServer(r)
	defer srv.Close()

	status, body := do(srv, "POST", "/board", entity.Record{
		"name":  "B",
		"items": []interface{}{"x", "y", "z"},
	})
	fmt.Println("CREATE:", status, body)

	var created map[string]interface{}
	json.Unmarshal([]byte(body), &created)
	id, _ := created["id"].(string)
	fmt.Println("id:", id)

	status, body = do(srv, "GET", "/board/"+id+"/items/1", nil)
	fmt.Println("GET items/1:", status, body)

	status, body = do(srv, "GET", "/board/"+id+"/items/0:3:2", nil)
	fmt.Println("GET items/0:3:2:", status, body)

	status, body = do(srv, "GET", "/board/"+id, nil)
	fmt.Println("GET record:", status, body)

	// Replicate TestAttrRootFallsBackToRead order: a GET at the attribute
	// root before any record exists, then a create.
	status, body = do(srv, "GET", "/board/items", nil)
	fmt.Println("GET /board/items:", status, body)

	status, body = do(srv, "POST", "/board", entity.Record{"name": "D"})
	fmt.Println("CREATE D:", status, body)

	// Article flow, mirroring TestCreateReadRoundTrip.
	reg2 := entity.NewRegistry()
	_, err = reg2.Register(entity.Definition{
		Name: "Article",
		Fields: []entity.Field{
			{Name: "title", Type: entity.TypeString},
			{Name: "views", Type: entity.TypeInt, Default: 0},
			{Name: "tags", Type: entity.ListOf(entity.TypeString), Default: []interface{}{"draft"}},
			{Name: "meta", Type: entity.MapOf(entity.TypeString, entity.TypeInt)},
		},
		Variants: []entity.VariantDecl{
			{Kind: entity.VariantDB, Extra: []entity.Field{
				{Name: "internal_note", Type: entity.TypeString, Nullable: true},
			}},
		},
	})
	if err != nil {
		fmt.Println("register2:", err)
		os.Exit(1)
	}
	st2, err := store.Open("sqlite3", ":memory:", zap.NewNop())
	if err != nil {
		fmt.Println("open2:", err)
		os.Exit(1)
	}
	st2.DB().SetMaxOpenConns(1)
	defer st2.Close()
	if err := st2.Migrate(context.Background(), reg2); err != nil {
		fmt.Println("migrate2:", err)
		os.Exit(1)
	}
	runtime2 := &rt{reg: reg2, store: st2}
	r2, _ := router.NewBuilder(reg2, runtime2, router.Config{}).Build()
	srv2 := httptest.NewServer(r2)
	defer srv2.Close()

	status, body = do(srv2, "POST", "/article", entity.Record{"title": "Hello", "internal_note": "hidden"})
	fmt.Println("ARTICLE CREATE:", status, body)
	var created2 map[string]interface{}
	json.Unmarshal([]byte(body), &created2)
	id2, _ := created2["id"].(string)

	status, body = do(srv2, "GET", "/article/"+id2, nil)
	fmt.Println("ARTICLE GET:", status, body)
}
