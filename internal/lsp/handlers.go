package lsp

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"mdls/internal/parser"
	"mdls/internal/scheduler"
	"mdls/internal/service"
	"mdls/internal/store"
	"mdls/internal/workspace"
)

func (ls *Server) initialize(
	glspCtx *glsp.Context,
	params *protocol.InitializeParams,
) (any, error) {
	cfg, err := service.Load(params.InitializationOptions)
	if err != nil {
		return nil, err
	}
	ls.cfg = cfg

	root := "."
	if params.RootURI != nil {
		if u, err := url.Parse(string(*params.RootURI)); err == nil && u.Path != "" {
			root = u.Path
		} else {
			root = string(*params.RootURI)
		}
	}
	ls.log.Infof("workspace root: %s", root)

	ls.ws = workspace.NewFSWorkspace(protocol.DocumentUri(root), cfg.FileExtensions)
	ls.svc = service.New(ls.ws, parser.NewScanner(), cfg)

	if err := ls.openIndex(root); err != nil {
		// The engine works without a persistent index; backlink queries
		// just start cold.
		ls.log.Warningf("persistent index disabled: %s", err.Error())
	}

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities := ls.handler.CreateServerCapabilities()
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
		Save:      &protocol.SaveOptions{IncludeText: &protocol.True},
	}
	capabilities.RenameProvider = protocol.RenameOptions{PrepareProvider: &protocol.True}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lsName,
			Version: &version,
		},
	}, nil
}

func (ls *Server) openIndex(root string) error {
	dbPath := ls.cfg.DatabasePath
	if dbPath == "" {
		stateDir, err := stateHome(lsName)
		if err != nil {
			return err
		}
		dbPath = filepath.Join(stateDir, url.PathEscape(root)+".db")
	}

	db, err := store.NewDB(dbPath)
	if err != nil {
		return err
	}
	ls.db = db

	scanner := store.NewScanner(db, ls.ws, ls.svc.IndexRows)
	ls.sched = scheduler.NewScheduler(16)
	ls.sched.Run()
	ls.sched.SchedulePeriodic(
		time.Duration(ls.cfg.ScanIntervalSecs)*time.Second,
		scheduler.Task{Name: "index-scan", Execute: scanner.Scan},
	)
	return nil
}

func (ls *Server) initialized(glspCtx *glsp.Context, params *protocol.InitializedParams) error {
	ls.log.Info("client initialized")
	return nil
}

func (ls *Server) shutdown(glspCtx *glsp.Context) error {
	ls.log.Info("shutting down")
	protocol.SetTraceValue(protocol.TraceValueOff)
	if ls.sched != nil {
		ls.sched.Stop()
	}
	if ls.db != nil {
		ls.db.Close()
	}
	if ls.svc != nil {
		ls.svc.Dispose()
	}
	return nil
}

func (ls *Server) setTrace(glspCtx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

func (ls *Server) textDocumentDidOpen(
	glspCtx *glsp.Context,
	params *protocol.DidOpenTextDocumentParams,
) error {
	ls.ws.DidOpen(ls.toURI(params.TextDocument.URI), params.TextDocument.Text, params.TextDocument.Version)
	return nil
}

func (ls *Server) textDocumentDidChange(
	glspCtx *glsp.Context,
	params *protocol.DidChangeTextDocumentParams,
) error {
	uri := ls.toURI(params.TextDocument.URI)
	content := ""
	if doc, err := ls.ws.OpenDocument(context.Background(), uri); err == nil {
		content = doc.Content()
	}

	for _, change := range params.ContentChanges {
		switch contentChange := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			content = contentChange.Text
		case protocol.TextDocumentContentChangeEvent:
			if contentChange.Range == nil {
				content = contentChange.Text
				continue
			}
			content = applyChange(content, *contentChange.Range, contentChange.Text)
		default:
			return fmt.Errorf("unexpected content change of type %T", change)
		}
	}

	ls.ws.DidChange(uri, content, params.TextDocument.Version)
	return nil
}

func (ls *Server) textDocumentDidSave(
	glspCtx *glsp.Context,
	params *protocol.DidSaveTextDocumentParams,
) error {
	if ls.sched == nil || ls.db == nil {
		return nil
	}
	// Refresh the persistent index for the saved document right away.
	uri := ls.toURI(params.TextDocument.URI)
	ls.sched.Schedule(scheduler.Task{
		Name: "index-document",
		Execute: func(ctx context.Context) error {
			doc, err := ls.ws.OpenDocument(ctx, uri)
			if err != nil {
				return err
			}
			row, links, headings, err := ls.svc.IndexRows(ctx, doc)
			if err != nil {
				return err
			}
			return ls.db.IndexDocument(row, links, headings)
		},
	})
	return nil
}

func (ls *Server) textDocumentDidClose(
	glspCtx *glsp.Context,
	params *protocol.DidCloseTextDocumentParams,
) error {
	ls.ws.DidClose(ls.toURI(params.TextDocument.URI))
	return nil
}

func (ls *Server) textDocumentReferences(
	glspCtx *glsp.Context,
	params *protocol.ReferenceParams,
) ([]protocol.Location, error) {
	return ls.svc.Locations(
		context.Background(),
		ls.toURI(params.TextDocument.URI),
		params.Position,
		params.Context.IncludeDeclaration,
	)
}

// prepareRenameResult is the range+placeholder variant of the prepareRename
// response.
type prepareRenameResult struct {
	Range       protocol.Range `json:"range"`
	Placeholder string         `json:"placeholder"`
}

func (ls *Server) textDocumentPrepareRename(
	glspCtx *glsp.Context,
	params *protocol.PrepareRenameParams,
) (any, error) {
	prep, err := ls.svc.PrepareRename(
		context.Background(),
		ls.toURI(params.TextDocument.URI),
		params.Position,
	)
	if err != nil {
		return nil, err
	}
	if prep == nil {
		return nil, nil
	}
	return prepareRenameResult{Range: prep.Range, Placeholder: prep.Placeholder}, nil
}

func (ls *Server) textDocumentRename(
	glspCtx *glsp.Context,
	params *protocol.RenameParams,
) (*protocol.WorkspaceEdit, error) {
	return ls.svc.RenameEdits(
		context.Background(),
		ls.toURI(params.TextDocument.URI),
		params.Position,
		params.NewName,
	)
}

func (ls *Server) workspaceSymbol(
	glspCtx *glsp.Context,
	params *protocol.WorkspaceSymbolParams,
) ([]protocol.SymbolInformation, error) {
	if ls.db == nil {
		return nil, nil
	}
	return indexSymbols(ls.db, params.Query)
}

// indexSymbols serves heading symbols from the persistent index, so the
// query works without parsing the whole workspace.
func indexSymbols(db *store.DB, query string) ([]protocol.SymbolInformation, error) {
	docs, err := db.AllDocuments()
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(query)
	var symbols []protocol.SymbolInformation
	for _, doc := range docs {
		headings, err := db.Headings(doc.Path)
		if err != nil {
			return nil, err
		}
		for _, h := range headings {
			if query != "" && !strings.Contains(strings.ToLower(h.Slug), query) {
				continue
			}
			symbols = append(symbols, protocol.SymbolInformation{
				Name: h.Slug,
				Kind: protocol.SymbolKindString,
				Location: protocol.Location{
					URI: protocol.DocumentUri(doc.Path),
					Range: protocol.Range{
						Start: protocol.Position{Line: h.Line},
						End:   protocol.Position{Line: h.Line},
					},
				},
			})
		}
	}
	return symbols, nil
}

func (ls *Server) textDocumentDocumentSymbol(
	glspCtx *glsp.Context,
	params *protocol.DocumentSymbolParams,
) (any, error) {
	return ls.svc.DocumentSymbols(context.Background(), ls.toURI(params.TextDocument.URI))
}

func (ls *Server) textDocumentFoldingRange(
	glspCtx *glsp.Context,
	params *protocol.FoldingRangeParams,
) ([]protocol.FoldingRange, error) {
	return ls.svc.FoldingRanges(context.Background(), ls.toURI(params.TextDocument.URI))
}

// toURI normalizes a client URI to the plain-path convention the workspace
// uses internally.
func (ls *Server) toURI(raw protocol.DocumentUri) protocol.DocumentUri {
	if u, err := url.Parse(string(raw)); err == nil && u.Scheme == "file" {
		return protocol.DocumentUri(u.Path)
	}
	return raw
}

func stateHome(appName string) (string, error) {
	xdgStateHome := os.Getenv("XDG_STATE_HOME")
	if xdgStateHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		xdgStateHome = filepath.Join(homeDir, ".local", "state")
	}

	appStateDir := filepath.Join(xdgStateHome, appName)
	if err := os.MkdirAll(appStateDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return appStateDir, nil
}
