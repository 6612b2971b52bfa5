// Package lsp exposes the language engine over the Language Server
// Protocol on stdio.
package lsp

import (
	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"mdls/internal/scheduler"
	"mdls/internal/service"
	"mdls/internal/store"
	"mdls/internal/workspace"
)

const lsName = "mdls"

var version = "0.1.0"

type Server struct {
	handler *protocol.Handler
	cfg     service.Config
	ws      *workspace.FSWorkspace
	svc     *service.Service
	db      *store.DB
	sched   *scheduler.Scheduler
	log     commonlog.Logger
}

func NewServer() (*server.Server, error) {
	ls := &Server{log: commonlog.GetLogger("mdls.lsp")}

	ls.handler = &protocol.Handler{
		Initialize:                 ls.initialize,
		Initialized:                ls.initialized,
		SetTrace:                   ls.setTrace,
		TextDocumentDidOpen:        ls.textDocumentDidOpen,
		TextDocumentDidChange:      ls.textDocumentDidChange,
		TextDocumentDidSave:        ls.textDocumentDidSave,
		TextDocumentDidClose:       ls.textDocumentDidClose,
		TextDocumentReferences:     ls.textDocumentReferences,
		TextDocumentPrepareRename:  ls.textDocumentPrepareRename,
		TextDocumentRename:         ls.textDocumentRename,
		TextDocumentDocumentSymbol: ls.textDocumentDocumentSymbol,
		TextDocumentFoldingRange:   ls.textDocumentFoldingRange,
		WorkspaceSymbol:            ls.workspaceSymbol,
		Shutdown:                   ls.shutdown,
	}

	return server.NewServer(ls.handler, lsName, false), nil
}
