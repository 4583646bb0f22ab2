// This file injects the "http" and "http_tls" Lua modules used by sideloaded
// plugins. Both are backed by the network package; http_tls additionally
// presents a Chrome TLS fingerprint, which some hosting sites require before
// they will serve a manifest to a non-browser client.
//
// Lua API:
//
//	http.get(url)                  → body string
//	http.get(url, headers_tbl)     → body string with custom headers
//	http.request(options_tbl)      → {status, body}
//	http_tls.get / http_tls.request — same surface, impersonating transport
package custom

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/strelay-cli/strelay/network"
)

const luaHTTPTimeout = 30 * time.Second

var (
	plainOnce   sync.Once
	plainClient *network.Client

	tlsOnce   sync.Once
	tlsClient *network.Client
)

func sharedClient(impersonate bool) (*network.Client, error) {
	var err error
	if impersonate {
		tlsOnce.Do(func() {
			tlsClient, err = network.New(network.Config{TLSImpersonate: true})
		})
		return tlsClient, err
	}
	plainOnce.Do(func() {
		plainClient, err = network.New(network.Config{})
	})
	return plainClient, err
}

// registerHTTPClient injects the http modules into a fresh Lua state. Called
// during script loading.
func registerHTTPClient(L *lua.LState) {
	plain := L.NewTable()
	L.SetField(plain, "get", L.NewFunction(luaGet(false)))
	L.SetField(plain, "request", L.NewFunction(luaRequest(false)))
	L.SetGlobal("http", plain)

	tls := L.NewTable()
	L.SetField(tls, "get", L.NewFunction(luaGet(true)))
	L.SetField(tls, "request", L.NewFunction(luaRequest(true)))
	L.SetGlobal("http_tls", tls)
}

// luaGet implements http.get(url [, headers]) → body string.
func luaGet(impersonate bool) lua.LGFunction {
	return func(L *lua.LState) int {
		url := L.CheckString(1)
		headers := headersFromTable(L.OptTable(2, nil))

		body, _, err := doRequest(impersonate, http.MethodGet, url, headers, "")
		if err != nil {
			L.RaiseError("http.get failed: %s", err.Error())
			return 0
		}
		L.Push(lua.LString(body))
		return 1
	}
}

// luaRequest implements http.request({method, url, headers, body}) →
// {status, body}.
func luaRequest(impersonate bool) lua.LGFunction {
	return func(L *lua.LState) int {
		opts := L.CheckTable(1)

		url := getStringField(opts, "url", "")
		if url == "" {
			L.RaiseError("http.request: url is required")
			return 0
		}
		method := strings.ToUpper(getStringField(opts, "method", http.MethodGet))
		reqBody := getStringField(opts, "body", "")

		var headers map[string]string
		if tbl, ok := opts.RawGetString("headers").(*lua.LTable); ok {
			headers = headersFromTable(tbl)
		}

		body, status, err := doRequest(impersonate, method, url, headers, reqBody)
		if err != nil {
			L.RaiseError("http.request failed: %s", err.Error())
			return 0
		}

		result := L.NewTable()
		L.SetField(result, "status", lua.LNumber(status))
		L.SetField(result, "body", lua.LString(body))
		L.Push(result)
		return 1
	}
}

func doRequest(impersonate bool, method, url string, headers map[string]string, body string) (string, int, error) {
	client, err := sharedClient(impersonate)
	if err != nil {
		return "", 0, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), luaHTTPTimeout)
	defer cancel()

	opts := &network.Options{Headers: headers}
	if body != "" {
		opts.Body = strings.NewReader(body)
	}

	var resp *network.Response
	switch method {
	case http.MethodPost:
		resp, err = client.Post(ctx, url, opts)
	default:
		resp, err = client.Get(ctx, url, opts)
	}
	if err != nil {
		return "", 0, err
	}
	return string(resp.Body), resp.StatusCode, nil
}

func headersFromTable(tbl *lua.LTable) map[string]string {
	if tbl == nil {
		return nil
	}
	out := make(map[string]string)
	tbl.ForEach(func(k, v lua.LValue) {
		out[k.String()] = v.String()
	})
	return out
}

func getStringField(tbl *lua.LTable, key, def string) string {
	val := tbl.RawGetString(key)
	if val == lua.LNil {
		return def
	}
	return val.String()
}
