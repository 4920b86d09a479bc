package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"

	"github.com/tetratelabs/wazero/api"

	"github.com/wasmind-run/fabric/internal/envelope"
	"github.com/wasmind-run/fabric/internal/fabscope"
)

// buildHostModule registers every capability function a guest component may
// import, under the "fabric_host" namespace. Each function resolves the
// calling guest's Instance from the api.Module wazero passes it, so one
// Host's capability bindings serve every instance it owns.
func (h *Host) buildHostModule(ctx context.Context) error {
	builder := h.runtime.NewHostModuleBuilder(hostModuleName)

	builder.NewFunctionBuilder().WithFunc(h.capBroadcast).Export("broadcast")
	builder.NewFunctionBuilder().WithFunc(h.capLog).Export("host_log")
	builder.NewFunctionBuilder().WithFunc(h.capSpawnAgent).Export("spawn_agent")
	builder.NewFunctionBuilder().WithFunc(h.capGetParentScope).Export("get_parent_scope")
	builder.NewFunctionBuilder().WithFunc(h.capGetParentScopeOf).Export("get_parent_scope_of")
	builder.NewFunctionBuilder().WithFunc(h.capCommandCreate).Export("command_create")
	builder.NewFunctionBuilder().WithFunc(h.capCommandSpawn).Export("command_spawn")
	builder.NewFunctionBuilder().WithFunc(h.capCommandWait).Export("command_wait")
	builder.NewFunctionBuilder().WithFunc(h.capHTTPRequest).Export("http_request")
	builder.NewFunctionBuilder().WithFunc(h.capHTTPSend).Export("http_send")
	builder.NewFunctionBuilder().WithFunc(h.capHostInfoGet).Export("host_info_get")

	_, err := builder.Instantiate(ctx)
	return err
}

// instanceOf resolves the Instance that owns mod, the calling guest module.
func (h *Host) instanceOf(mod api.Module) (*Instance, error) {
	inst, ok := h.instanceByModuleName(mod.Name())
	if !ok {
		return nil, fmt.Errorf("no sandbox instance registered for module %q", mod.Name())
	}

	return inst, nil
}

// capBroadcast implements messaging.broadcast: publish an envelope stamped
// with the caller's identity and its currently-handled correlation id.
func (h *Host) capBroadcast(
	ctx context.Context, mod api.Module,
	msgTypePtr, msgTypeLen, payloadPtr, payloadLen uint32,
) {
	inst, err := h.instanceOf(mod)
	if err != nil {
		log.ErrorS(ctx, "broadcast from unregistered module", "err", err)
		return
	}

	msgType, err := readString(mod, msgTypePtr, msgTypeLen)
	if err != nil {
		log.ErrorS(ctx, "broadcast: reading message_type", "err", err)
		return
	}

	payload, err := readMemory(mod, payloadPtr, payloadLen)
	if err != nil {
		log.ErrorS(ctx, "broadcast: reading payload", "err", err)
		return
	}

	e := envelope.Envelope{
		ID:          inst.currentCorrelationID(),
		FromActorID: inst.actorID,
		FromScope:   inst.scope,
		MessageType: msgType,
		Payload:     payload,
	}

	h.bus.PublishLogged(ctx, e)
}

// capLog implements logger.log: route guest log lines to the host's
// structured logger, tagged with the actor and scope that emitted them.
func (h *Host) capLog(ctx context.Context, mod api.Module, level, textPtr, textLen uint32) {
	inst, err := h.instanceOf(mod)
	if err != nil {
		return
	}

	text, err := readString(mod, textPtr, textLen)
	if err != nil {
		return
	}

	kv := []interface{}{"actor_id", inst.actorID, "scope", inst.scope}

	switch level {
	case 0:
		log.TraceS(ctx, text, kv...)
	case 1:
		log.DebugS(ctx, text, kv...)
	case 2:
		log.InfoS(ctx, text, kv...)
	case 3:
		log.WarnS(ctx, text, kv...)
	default:
		log.ErrorS(ctx, text, kv...)
	}
}

type spawnAgentResult struct {
	Scope string `json:"scope,omitempty"`
	Error string `json:"error,omitempty"`
}

// capSpawnAgent implements agent.spawn_agent: delegate to the Coordinator
// through the injected SpawnFunc and return the new scope.
func (h *Host) capSpawnAgent(
	ctx context.Context, mod api.Module,
	namesPtr, namesLen, namePtr, nameLen uint32,
) (uint32, uint32) {

	inst, err := h.instanceOf(mod)
	if err != nil {
		return h.writeJSONResult(ctx, mod, spawnAgentResult{Error: err.Error()})
	}

	var names []string
	namesJSON, err := readMemory(mod, namesPtr, namesLen)
	if err != nil {
		return h.writeJSONResult(ctx, mod, spawnAgentResult{Error: err.Error()})
	}
	if err := json.Unmarshal(namesJSON, &names); err != nil {
		return h.writeJSONResult(ctx, mod, spawnAgentResult{Error: err.Error()})
	}

	name, err := readString(mod, namePtr, nameLen)
	if err != nil {
		return h.writeJSONResult(ctx, mod, spawnAgentResult{Error: err.Error()})
	}

	if h.spawn == nil {
		return h.writeJSONResult(ctx, mod, spawnAgentResult{
			Error: "spawn_agent: no coordinator wired to this host",
		})
	}

	scope, err := h.spawn(ctx, inst.scope, names, name)
	if err != nil {
		return h.writeJSONResult(ctx, mod, spawnAgentResult{Error: err.Error()})
	}

	return h.writeJSONResult(ctx, mod, spawnAgentResult{Scope: scope.String()})
}

type parentScopeResult struct {
	Scope string `json:"scope,omitempty"`
	OK    bool   `json:"ok"`
}

// capGetParentScope implements agent.get_parent_scope for the calling
// instance's own scope.
func (h *Host) capGetParentScope(ctx context.Context, mod api.Module) (uint32, uint32) {
	inst, err := h.instanceOf(mod)
	if err != nil {
		return h.writeJSONResult(ctx, mod, parentScopeResult{})
	}

	parent, ok := h.tree.ParentOf(inst.scope)
	return h.writeJSONResult(ctx, mod, parentScopeResult{Scope: parent.String(), OK: ok})
}

// capGetParentScopeOf implements agent.get_parent_scope_of for an arbitrary
// scope named by the guest.
func (h *Host) capGetParentScopeOf(
	ctx context.Context, mod api.Module, scopePtr, scopeLen uint32,
) (uint32, uint32) {

	scopeStr, err := readString(mod, scopePtr, scopeLen)
	if err != nil {
		return h.writeJSONResult(ctx, mod, parentScopeResult{})
	}

	parent, ok := h.tree.ParentOf(fabscope.Scope(scopeStr))
	return h.writeJSONResult(ctx, mod, parentScopeResult{Scope: parent.String(), OK: ok})
}

type commandSpec struct {
	Args []string          `json:"args"`
	Env  map[string]string `json:"env"`
	Cwd  string            `json:"cwd"`
}

// capCommandCreate implements command.create: build (but do not yet start)
// an *exec.Cmd and hand back an opaque handle.
func (h *Host) capCommandCreate(
	ctx context.Context, mod api.Module,
	programPtr, programLen, specPtr, specLen uint32,
) int64 {

	inst, err := h.instanceOf(mod)
	if err != nil {
		return -1
	}

	program, err := readString(mod, programPtr, programLen)
	if err != nil {
		return -1
	}

	var spec commandSpec
	if specLen > 0 {
		data, err := readMemory(mod, specPtr, specLen)
		if err != nil {
			return -1
		}
		if err := json.Unmarshal(data, &spec); err != nil {
			return -1
		}
	}

	cmd := exec.CommandContext(ctx, program, spec.Args...)
	cmd.Dir = spec.Cwd
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	return inst.resources.acquireCommand(cmd)
}

// capCommandSpawn implements cmd.spawn(): start the process referenced by
// handle.
func (h *Host) capCommandSpawn(ctx context.Context, mod api.Module, handle int64) int32 {
	inst, err := h.instanceOf(mod)
	if err != nil {
		return -1
	}

	pc, ok := inst.resources.peekCommand(handle)
	if !ok {
		return -1
	}

	if err := pc.cmd.Start(); err != nil {
		return -1
	}

	return 0
}

type commandResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}

// capCommandWait implements handle.wait(): block for process exit and
// release the handle unconditionally, satisfying the guaranteed-release
// requirement on this exit path.
func (h *Host) capCommandWait(
	ctx context.Context, mod api.Module, handle int64,
) (uint32, uint32) {

	inst, err := h.instanceOf(mod)
	if err != nil {
		return h.writeJSONResult(ctx, mod, commandResult{Error: err.Error()})
	}

	pc, ok := inst.resources.takeCommand(handle)
	if !ok {
		return h.writeJSONResult(ctx, mod, commandResult{Error: "unknown command handle"})
	}

	waitErr := pc.cmd.Wait()

	res := commandResult{
		Stdout:   bufferString(pc.cmd.Stdout),
		Stderr:   bufferString(pc.cmd.Stderr),
		ExitCode: pc.cmd.ProcessState.ExitCode(),
	}
	if waitErr != nil {
		res.Error = waitErr.Error()
	}

	return h.writeJSONResult(ctx, mod, res)
}

func bufferString(w io.Writer) string {
	if b, ok := w.(*bytes.Buffer); ok {
		return b.String()
	}
	return ""
}

// capHTTPRequest implements http.request: build (but do not yet send) a
// request and hand back an opaque handle.
func (h *Host) capHTTPRequest(
	ctx context.Context, mod api.Module,
	methodPtr, methodLen, urlPtr, urlLen, headersPtr, headersLen uint32,
) int64 {

	inst, err := h.instanceOf(mod)
	if err != nil {
		return -1
	}

	method, err := readString(mod, methodPtr, methodLen)
	if err != nil {
		return -1
	}

	url, err := readString(mod, urlPtr, urlLen)
	if err != nil {
		return -1
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return -1
	}

	if headersLen > 0 {
		headersJSON, err := readMemory(mod, headersPtr, headersLen)
		if err == nil {
			var headers map[string]string
			if json.Unmarshal(headersJSON, &headers) == nil {
				for k, v := range headers {
					req.Header.Set(k, v)
				}
			}
		}
	}

	return inst.resources.acquireRequest(req)
}

type httpResult struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// capHTTPSend implements request.send(): issue the request referenced by
// handle and release it unconditionally, satisfying the guaranteed-release
// requirement on this exit path.
func (h *Host) capHTTPSend(
	ctx context.Context, mod api.Module, handle int64, bodyPtr, bodyLen uint32,
) (uint32, uint32) {

	inst, err := h.instanceOf(mod)
	if err != nil {
		return h.writeJSONResult(ctx, mod, httpResult{Error: err.Error()})
	}

	pr, ok := inst.resources.takeRequest(handle)
	if !ok {
		return h.writeJSONResult(ctx, mod, httpResult{Error: "unknown request handle"})
	}

	if bodyLen > 0 {
		body, err := readMemory(mod, bodyPtr, bodyLen)
		if err == nil {
			pr.req.Body = io.NopCloser(bytes.NewReader(body))
			pr.req.ContentLength = int64(len(body))
		}
	}

	resp, err := http.DefaultClient.Do(pr.req)
	if err != nil {
		return h.writeJSONResult(ctx, mod, httpResult{Error: err.Error()})
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return h.writeJSONResult(ctx, mod, httpResult{Error: err.Error()})
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return h.writeJSONResult(ctx, mod, httpResult{
		Status:  resp.StatusCode,
		Headers: headers,
		Body:    string(bodyBytes),
	})
}

// capHostInfoGet implements host_info.*: a single read-only key/value
// getter backing every host_info accessor the guest bindings expose.
func (h *Host) capHostInfoGet(
	ctx context.Context, mod api.Module, keyPtr, keyLen uint32,
) (uint32, uint32) {

	key, err := readString(mod, keyPtr, keyLen)
	if err != nil {
		return 0, 0
	}

	ptr, length, err := writeMemory(ctx, mod, []byte(h.hostInfo[key]))
	if err != nil {
		log.ErrorS(ctx, "host_info_get: writing guest memory", "err", err)
		return 0, 0
	}

	return ptr, length
}

// writeJSONResult marshals v and writes it into mod's guest-allocated
// memory, the shared convention every capability function that returns
// structured data uses in place of the Component Model's canonical ABI.
func (h *Host) writeJSONResult(ctx context.Context, mod api.Module, v interface{}) (uint32, uint32) {
	data, err := json.Marshal(v)
	if err != nil {
		log.ErrorS(ctx, "marshaling capability result", "err", err)
		return 0, 0
	}

	ptr, length, err := writeMemory(ctx, mod, data)
	if err != nil {
		log.ErrorS(ctx, "writing capability result into guest memory", "err", err)
		return 0, 0
	}

	return ptr, length
}
