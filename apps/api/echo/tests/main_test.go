package tests

import (
	"fmt"
	"log"
	"os"
	"testing"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/document"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/services/email"
	"github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/storage/database/inmem"
	"github.com/trezcool/darasa/storage/object"

	. "github.com/trezcool/darasa/apps/api/echo"
)

var (
	conf *core.Config
	app  Server

	usrRepo user.Repository
	docRepo document.Repository
	usrSvc  *user.Service
	docSvc  *document.Service
)

func TestMain(m *testing.M) {
	conf = core.NewConfig()
	conf.Debug = false
	conf.TestMode = true

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	docRepo = inmemdb.NewDocumentRepository(db)

	// set up services
	logger := logsvc.NewStdLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags|log.Lshortfile))
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc = user.NewService(conf, usrRepo, mailSvc)
	docSvc = document.NewService(conf, docRepo, mailSvc, logger)

	attachmentDir, err := os.MkdirTemp("", "darasa-test-attachments")
	if err != nil {
		fmt.Printf("os.MkdirTemp(): %v", err)
		os.Exit(1)
	}
	conf.Document.AttachmentDir = attachmentDir
	storage, err := object.NewDiskStorage(attachmentDir, conf.Document.AttachmentURL)
	if err != nil {
		fmt.Printf("object.NewDiskStorage(): %v", err)
		os.Exit(1)
	}

	// set up server
	app = NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		UserSvc:        usrSvc,
		DocSvc:         docSvc,
		Storage:        storage,
		DisableReqLogs: true,
	})

	// run tests
	code := m.Run()

	// clean up
	_ = os.RemoveAll(attachmentDir)

	os.Exit(code)
}
