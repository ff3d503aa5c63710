package server

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/vatsan127/config-server/cerrors"
	"github.com/vatsan127/config-server/notify"
	"github.com/vatsan127/config-server/validator"
)

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return cerrors.Wrap(cerrors.CodeInvalidContent, "malformed JSON body", err)
	}
	return nil
}

// --- /namespace/* -----------------------------------------------------

type namespaceRequest struct {
	Namespace string `json:"namespace"`
	Path      string `json:"path"`
}

func (s *Server) handleNamespaceCreate(w http.ResponseWriter, r *http.Request) {
	var req namespaceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validator.ValidateNamespace(req.Namespace); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := timeoutContext(r)
	defer cancel()

	if err := s.configs.CreateNamespace(ctx, req.Namespace); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"namespace": req.Namespace})
}

func (s *Server) handleNamespaceList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeoutContext(r)
	defer cancel()

	names, err := s.configs.ListNamespaces(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"namespaces": names})
}

func (s *Server) handleNamespaceFiles(w http.ResponseWriter, r *http.Request) {
	var req namespaceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := timeoutContext(r)
	defer cancel()

	entries, err := s.configs.ListDirectory(ctx, req.Namespace, req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleNamespaceDelete(w http.ResponseWriter, r *http.Request) {
	var req namespaceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validator.ValidateNamespace(req.Namespace); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := timeoutContext(r)
	defer cancel()

	if err := s.configs.DeleteNamespace(ctx, req.Namespace); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"namespace": req.Namespace})
}

func (s *Server) handleNamespaceEvents(w http.ResponseWriter, r *http.Request) {
	var req namespaceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := timeoutContext(r)
	defer cancel()

	events, err := s.configs.NamespaceEvents(ctx, req.Namespace)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleNamespaceNotify(w http.ResponseWriter, r *http.Request) {
	var req namespaceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validator.ValidateNamespace(req.Namespace); err != nil {
		writeError(w, err)
		return
	}

	notifications := s.notifications(req.Namespace)
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

func (s *Server) notifications(namespace string) []notify.Notification {
	return s.notifier.Recent(namespace)
}

// --- /config/* ----------------------------------------------------------

type configRequest struct {
	Action        string `json:"action"`
	AppName       string `json:"appName"`
	Namespace     string `json:"namespace"`
	Path          string `json:"path"`
	Email         string `json:"email"`
	Content       string `json:"content"`
	Message       string `json:"message"`
	CommitID      string `json:"commitId"`
}

func (s *Server) handleConfigAction(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := timeoutContext(r)
	defer cancel()

	switch req.Action {
	case "create":
		commitID, err := s.configs.Initialize(ctx, fullPath(req), req.AppName, req.Email)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"commitId": commitID})

	case "fetch":
		content, err := s.configs.Read(ctx, fullPath(req))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"content": content})

	case "update":
		result, err := s.configs.Update(ctx, fullPath(req), req.Content, req.Message, req.CommitID, req.Email, req.AppName)
		if err != nil {
			writeError(w, err)
			return
		}
		s.notifier.SendRefresh(result.Namespace, result.AppName, result.CommitID)
		writeJSON(w, http.StatusOK, map[string]string{"commitId": result.CommitID})

	case "history":
		records, err := s.configs.History(ctx, fullPath(req))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": records})

	case "delete":
		commitID, err := s.configs.Delete(ctx, fullPath(req), req.Message, req.Email)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"commitId": commitID})

	default:
		writeError(w, cerrors.New(cerrors.CodeInvalidActionType, "unrecognized config action"))
	}
}

func fullPath(req configRequest) string {
	return req.Namespace + "/" + req.Path
}

func (s *Server) handleConfigChanges(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := timeoutContext(r)
	defer cancel()

	record, diff, err := s.configs.CommitChanges(ctx, req.Namespace, req.CommitID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"commit": record,
		"diff":   diff,
	})
}

// --- /vault/* -------------------------------------------------------------

type vaultGetRequest struct {
	Namespace string `json:"namespace"`
}

func (s *Server) handleVaultGet(w http.ResponseWriter, r *http.Request) {
	var req vaultGetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validator.ValidateNamespace(req.Namespace); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := timeoutContext(r)
	defer cancel()

	secrets, err := s.vaults.Get(ctx, req.Namespace)
	if err != nil {
		writeError(w, err)
		return
	}

	// Management surfaces never see plaintext or ciphertext vault values,
	// only the set of configured keys, per the internal-mode redaction
	// rationale in spec §4.7.
	keys := make([]string, 0, len(secrets))
	for k := range secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// vaultUpdateRequest binds the fixed management fields; secret key/value
// pairs arrive as additional top-level JSON fields per spec §6, so they are
// decoded separately into a raw map and the reserved keys subtracted out.
type vaultUpdateRequest struct {
	Namespace     string `json:"namespace"`
	Email         string `json:"email"`
	CommitMessage string `json:"commitMessage"`
}

var vaultReservedFields = map[string]struct{}{
	"namespace": {}, "email": {}, "commitMessage": {},
}

func (s *Server) handleVaultUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := decodeRawBody(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req vaultUpdateRequest
	if err := remarshal(body, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validator.ValidateNamespace(req.Namespace); err != nil {
		writeError(w, err)
		return
	}
	if err := validator.ValidateEmail(req.Email); err != nil {
		writeError(w, err)
		return
	}
	if err := validator.ValidateCommitMessage(req.CommitMessage); err != nil {
		writeError(w, err)
		return
	}

	secrets := make(map[string]string)
	for k, v := range body {
		if _, reserved := vaultReservedFields[k]; reserved {
			continue
		}
		if str, ok := v.(string); ok {
			secrets[k] = str
		}
	}

	ctx, cancel := timeoutContext(r)
	defer cancel()

	commitID, err := s.vaults.Update(ctx, req.Namespace, secrets, req.Email, req.CommitMessage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"commitId": commitID})
}

// --- pull-client resolution interface --------------------------------

type resolveRequest struct {
	Application string `json:"application"`
	Profile     string `json:"profile"`
	Label       string `json:"label"`
}

// handleResolve implements the pull-client contract from spec §6: merges
// base/app/profile YAML for (application, profile, label) and returns the
// flattened, secret-resolved view plus a version identifier.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := timeoutContext(r)
	defer cancel()

	result, err := s.resolve.Resolve(ctx, req.Application, req.Profile, req.Label)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"propertySources": result.PropertySources,
		"version":         result.Version,
	})
}

func decodeRawBody(r *http.Request) (map[string]any, error) {
	defer r.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, cerrors.Wrap(cerrors.CodeInvalidContent, "malformed JSON body", err)
	}
	return body, nil
}

func remarshal(body map[string]any, dst any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return cerrors.Wrap(cerrors.CodeInvalidContent, "failed to re-encode request body", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return cerrors.Wrap(cerrors.CodeInvalidContent, "malformed JSON body", err)
	}
	return nil
}
