// Package monitoring serves the state of running blocks over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/ispcore/debugparam"
	"github.com/sarchlab/ispcore/dma"
	"github.com/sarchlab/ispcore/hwblock"
	"github.com/sarchlab/ispcore/monitoring/web"
	"github.com/sarchlab/ispcore/recovery"
)

// A Block is what the monitor can show about a block controller.
type Block interface {
	Name() string
	Type() string
	State() hwblock.State
	EventState() hwblock.EventState
	Overflow() bool
	Bypass() bool
	Counters() hwblock.Counters
	Channels() []dma.ChannelSummary
	Dump(mode hwblock.DumpMode) *hwblock.Dump
}

// A ReportSource tells what the recovery orchestrator last did.
type ReportSource interface {
	LastReport() recovery.Report
}

// Monitor turns a running pipeline into a server that can be inspected.
type Monitor struct {
	blocks     []Block
	recovery   ReportSource
	portNumber int

	profileDuration time.Duration

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		profileDuration: time.Second,
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterBlock registers a block to be monitored.
func (m *Monitor) RegisterBlock(b Block) {
	m.blocks = append(m.blocks, b)
}

// RegisterRecovery sets where recovery reports come from.
func (m *Monitor) RegisterRecovery(r ReportSource) {
	m.recovery = r
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the handler of every monitor endpoint.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/list_blocks", m.listBlocks)
	r.HandleFunc("/api/block/{name}", m.listBlockDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/status/{name}", m.status)
	r.HandleFunc("/api/dump/{name}", m.dump)
	r.HandleFunc("/api/debug", m.debugParams)
	r.HandleFunc("/api/recovery", m.lastRecovery)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(web.Handler())

	return r
}

// StartServer starts the monitor as a web server and returns the port it
// listens on.
func (m *Monitor) StartServer() int {
	http.Handle("/", m.Router())

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	port := listener.Addr().(*net.TCPAddr).Port

	fmt.Fprintf(
		os.Stderr,
		"Monitoring pipeline with http://localhost:%d\n",
		port)

	go func() {
		err = http.Serve(listener, nil)
		dieOnErr(err)
	}()

	return port
}

func (m *Monitor) listBlocks(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, len(m.blocks))
	for i, b := range m.blocks {
		names[i] = b.Name()
	}

	writeJSON(w, names)
}

func (m *Monitor) listBlockDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	block := m.findBlockOr404(w, name)
	if block == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(block)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	BlockName string `json:"block_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	block := m.findBlockOr404(w, req.BlockName)
	if block == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(block)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

type statusRsp struct {
	Name     string               `json:"name"`
	Type     string               `json:"type"`
	State    string               `json:"state"`
	Event    string               `json:"event"`
	Overflow bool                 `json:"overflow"`
	Bypass   bool                 `json:"bypass"`
	Counters hwblock.Counters     `json:"counters"`
	Channels []dma.ChannelSummary `json:"channels"`
}

func (m *Monitor) status(w http.ResponseWriter, r *http.Request) {
	b := m.findBlockOr404(w, mux.Vars(r)["name"])
	if b == nil {
		return
	}

	writeJSON(w, statusRsp{
		Name:     b.Name(),
		Type:     b.Type(),
		State:    b.State().String(),
		Event:    b.EventState().String(),
		Overflow: b.Overflow(),
		Bypass:   b.Bypass(),
		Counters: b.Counters(),
		Channels: b.Channels(),
	})
}

func (m *Monitor) dump(w http.ResponseWriter, r *http.Request) {
	b := m.findBlockOr404(w, mux.Vars(r)["name"])
	if b == nil {
		return
	}

	mode := hwblock.DumpLight

	if s := r.URL.Query().Get("mode"); s != "" {
		var err error

		mode, err = hwblock.ParseDumpMode(s)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	writeJSON(w, b.Dump(mode))
}

type debugRsp struct {
	Flags   []string `json:"flags"`
	Pattern uint32   `json:"pattern"`
}

func (m *Monitor) debugParams(w http.ResponseWriter, _ *http.Request) {
	p := debugparam.Get()

	names := p.Names()
	if names == nil {
		names = []string{}
	}

	writeJSON(w, debugRsp{Flags: names, Pattern: p.Pattern})
}

type actionRsp struct {
	Block    string `json:"block"`
	Reason   string `json:"reason"`
	Action   string `json:"action"`
	HwFcount uint32 `json:"hw_fcount"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

type recoveryRsp struct {
	Fcount  uint32      `json:"fcount"`
	Actions []actionRsp `json:"actions"`
}

func (m *Monitor) lastRecovery(w http.ResponseWriter, _ *http.Request) {
	if m.recovery == nil {
		http.Error(w, "Recovery not registered", http.StatusNotFound)
		return
	}

	report := m.recovery.LastReport()
	rsp := recoveryRsp{
		Fcount:  report.Fcount,
		Actions: make([]actionRsp, 0, len(report.Results)),
	}

	for _, res := range report.Results {
		a := actionRsp{
			Block:    res.Block,
			Reason:   res.Reason,
			Action:   res.Action.String(),
			HwFcount: res.HwFcount,
			Attempts: res.Attempts,
		}

		if res.Err != nil {
			a.Error = res.Err.Error()
		}

		rsp.Actions = append(rsp.Actions, a)
	}

	writeJSON(w, rsp)
}

func (m *Monitor) findBlockOr404(
	w http.ResponseWriter,
	name string,
) Block {
	for _, b := range m.blocks {
		if b.Name() == name {
			return b
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Block not found"))
	dieOnErr(err)

	return nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	writeJSON(w, m.progressBars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(m.profileDuration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
