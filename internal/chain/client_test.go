package chain

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/datura-labs/argus/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c, err := NewClient(&config.ChainEnvConfig{SidecarHost: "127.0.0.1", SidecarPort: "0"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	c.baseURL = ts.URL
	c.httpClient.RetryMax = 0
	return c
}

func TestNewClientNilConfig(t *testing.T) {
	if _, err := NewClient(nil); err == nil {
		t.Fatal("expected error when cfg is nil")
	}
}

func TestGetMetagraphSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chain/subnet-metagraph/22" || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"statusCode":200,"success":true,"data":{"netuid":22,"tempo":360,"hotkeys":["hk0","hk1"],"coldkeys":["ck0","ck1"],"axons":[{"ip":"1.2.3.4","port":8091},{"ip":"5.6.7.8","port":8091}],"active":[true,true]},"error":null}`))
	})

	res, err := c.GetMetagraph(22)
	if err != nil {
		t.Fatalf("GetMetagraph error: %v", err)
	}
	if res.Data.Netuid != 22 || res.Data.Tempo != 360 || len(res.Data.Hotkeys) != 2 {
		t.Fatalf("unexpected response: %+v", res)
	}
}

func TestGetLatestBlockSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chain/latest-block" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"statusCode":200,"success":true,"data":{"parentHash":"0x1","blockNumber":4242},"error":null}`))
	})

	res, err := c.GetLatestBlock()
	if err != nil {
		t.Fatalf("GetLatestBlock error: %v", err)
	}
	if res.Data.BlockNumber != 4242 {
		t.Fatalf("unexpected response: %+v", res)
	}
}

func TestSetWeightsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chain/set-weights" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"statusCode":200,"success":true,"data":"0xdead","error":null}`))
	})

	res, err := c.SetWeights(SetWeightsParams{Netuid: 22, Dests: []int{1}, Weights: []int{65535}})
	if err != nil {
		t.Fatalf("SetWeights error: %v", err)
	}
	if res.Data != "0xdead" {
		t.Fatalf("unexpected response: %+v", res)
	}
}

func TestSidecarErrorField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"statusCode":200,"success":false,"data":null,"error":{"msg":"boom"}}`))
	})

	if _, err := c.GetLatestBlock(); err == nil {
		t.Fatal("expected error when sidecar reports failure")
	}
}
