// Package chain provides the subtensor registry client and shared chain state.
// All chain access goes through a local sidecar service speaking HTTP.
package chain

// Registry is the surface of the external registry the validator depends on:
// current membership, weight commits, and chain timing.
type Registry interface {
	GetMetagraph(netuid int) (SubnetMetagraphResponse, error)
	GetLatestBlock() (LatestBlockResponse, error)
	SetWeights(params SetWeightsParams) (ExtrinsicHashResponse, error)
	SignMessage(params SignMessageParams) (SignMessageResponse, error)
}

type SidecarResponse[T any] struct {
	StatusCode int            `json:"statusCode"`
	Success    bool           `json:"success"`
	Data       T              `json:"data"`
	Error      map[string]any `json:"error"`
}

type (
	SubnetMetagraphResponse = SidecarResponse[SubnetMetagraph]
	LatestBlockResponse     = SidecarResponse[LatestBlock]
	SignMessageResponse     = SidecarResponse[SignMessage]
	ExtrinsicHashResponse   = SidecarResponse[string]
)

// SubnetMetagraph is the registry's view of the subnet: one entry per uid.
type SubnetMetagraph struct {
	Netuid   int        `json:"netuid"`
	Name     string     `json:"name"`
	Block    int        `json:"block"`
	Tempo    int        `json:"tempo"`
	NumUids  int        `json:"numUids"`
	MaxUids  int        `json:"maxUids"`
	Hotkeys  []string   `json:"hotkeys"`
	Coldkeys []string   `json:"coldkeys"`
	Axons    []AxonInfo `json:"axons"`
	Active   []bool     `json:"active"`
}

type AxonInfo struct {
	Block   int    `json:"block"`
	Version int    `json:"version"`
	IP      string `json:"ip"`
	Port    int    `json:"port"`
	IPType  int    `json:"ipType"`
}

type LatestBlock struct {
	ParentHash  string `json:"parentHash"`
	BlockNumber int    `json:"blockNumber"`
}

type SetWeightsParams struct {
	Netuid     int   `json:"netuid"`
	Dests      []int `json:"dests"`
	Weights    []int `json:"weights"`
	VersionKey int   `json:"versionKey"`
}

type SignMessageParams struct {
	Message string `json:"message"`
}

type SignMessage struct {
	Signature string `json:"signature"`
}
