package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/IMQS/gzipresponse"
	"github.com/julienschmidt/httprouter"
	"github.com/pierrec/xxHash/xxHash32"

	"github.com/IMQS/censearch/catalog"
	"github.com/IMQS/censearch/search"
)

// Seconds a client should wait before repeating a search that failed in the backend
const backendRetryAfter = "1"

type jsonResultStats struct {
	TimePlan      float64
	TimeBackend   float64
	TimeAggregate float64
	TimeTotal     float64
	Rows          int
	Suppressed    int
	Malformed     int
}

type jsonSearchResult struct {
	Query     string
	Rewritten string
	Mode      string
	NumHits   int
	NoResults bool
	Reason    string `json:",omitempty"` // empty_query or no_matches
	// []*search.Hit for how=json, otherwise []*search.DisplayHit
	Hits  interface{}
	Stats jsonResultStats
}

type jsonTableDetail struct {
	ID          string
	Description string
	Universe    string
	Keyword     string
	Edition     string
	Variables   []*jsonVariableNode
	Dropped     int
}

type jsonVariableNode struct {
	ID        string
	Label     string
	FullLabel string
	DataType  string
	Children  []*jsonVariableNode
}

type jsonPingResult struct {
	Timestamp int64
}

func (e *Engine) RunHttp() error {
	config := e.GetConfig()
	addr := fmt.Sprintf("%v:%v", config.HTTP.Bind, config.HTTP.Port)

	e.ErrorLog.Infof("Censearch is listening on %v", addr)

	err := http.ListenAndServe(addr, e.makeRouter())
	e.ErrorLog.Infof("ListenAndServe: %v", err)
	return err
}

func (e *Engine) makeRouter() *httprouter.Router {
	makeRoute := func(f func(*Engine, http.ResponseWriter, *http.Request, httprouter.Params)) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			f(e, w, r, ps)
		}
	}

	router := httprouter.New()
	router.GET("/censearch/text-search", e.limiter.wrap(makeRoute(httpTextSearch)))
	router.GET("/censearch/tables/:table_id", makeRoute(httpTableDetail))
	router.GET("/ping", makeRoute(httpPing))
	return router
}

func httpSendError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	fmt.Fprintf(w, "%v", err)
}

func httpSendJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	raw, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	gzipresponse.Write(w, r, raw)
}

func httpTextSearch(e *Engine, w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	query := r.URL.Query().Get("q")
	mode := search.ParseOutputMode(r.URL.Query().Get("how"))

	res, err := e.Find(r.Context(), query, mode)
	if err != nil && !search.IsNoResults(err) {
		e.ErrorLog.Warnf(`Search failed: %v. Query = "%v"`, err, query)
		if search.IsRetryable(err) {
			w.Header().Set("Retry-After", backendRetryAfter)
			httpSendError(w, http.StatusServiceUnavailable, err)
		} else {
			httpSendError(w, http.StatusInternalServerError, err)
		}
		return
	}

	e.AccessLog.Infof("TextSearch(%v): %v hits in %.2f ms", query, len(res.Hits), res.TimeTotal.Seconds()*1000.0)
	out := jsonSearchResult{
		Query:     query,
		Mode:      mode.String(),
		NumHits:   len(res.Hits),
		NoResults: err != nil,
		Reason:    search.NoResultsReason(err),
		Stats: jsonResultStats{
			TimePlan:      res.TimePlan.Seconds(),
			TimeBackend:   res.TimeBackend.Seconds(),
			TimeAggregate: res.TimeAggregate.Seconds(),
			TimeTotal:     res.TimeTotal.Seconds(),
			Rows:          res.Stats.Rows,
			Suppressed:    res.Stats.Suppressed,
			Malformed:     res.Stats.Malformed,
		},
	}
	if res.Plan != nil {
		out.Rewritten = res.Plan.Rewritten
	}
	if mode == search.ModeDocument {
		out.Hits = res.Hits
	} else {
		out.Hits = search.Display(res.Hits)
	}
	httpSendJSON(w, r, &out)
}

func httpTableDetail(e *Engine, w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tableID := strings.ToUpper(ps.ByName("table_id"))
	detail, err := e.GetTableDetail(r.Context(), tableID)
	if err == ErrTableNotFound {
		httpSendError(w, http.StatusNotFound, fmt.Errorf("%v: %v", err, tableID))
		return
	} else if err != nil {
		e.ErrorLog.Errorf("Reading table %v failed: %v", tableID, err)
		httpSendError(w, http.StatusServiceUnavailable, err)
		return
	}

	raw, _ := json.Marshal(tableDetailToJSON(detail))
	eTag := fmt.Sprintf(`"%08x"`, xxHash32.Checksum(raw, 0))
	if r.Header.Get("If-None-Match") == eTag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "max-age=0, no-cache")
	w.Header().Set("ETag", eTag)
	gzipresponse.Write(w, r, raw)
}

func tableDetailToJSON(d *TableDetail) *jsonTableDetail {
	var convert func(nodes []*catalog.Node) []*jsonVariableNode
	convert = func(nodes []*catalog.Node) []*jsonVariableNode {
		out := make([]*jsonVariableNode, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, &jsonVariableNode{
				ID:        n.ID,
				Label:     n.Label,
				FullLabel: n.FullLabel,
				DataType:  n.DataType,
				Children:  convert(n.Children),
			})
		}
		return out
	}
	return &jsonTableDetail{
		ID:          d.Table.ID,
		Description: d.Table.Description,
		Universe:    d.Table.Universe,
		Keyword:     d.Table.Keyword,
		Edition:     string(d.Table.Edition),
		Variables:   convert(d.Variables),
		Dropped:     d.Dropped,
	}
}

func httpPing(e *Engine, w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "max-age=0, no-cache")
	res := jsonPingResult{
		Timestamp: time.Now().Unix(),
	}
	response, _ := json.Marshal(&res)
	w.Write(response)
}
