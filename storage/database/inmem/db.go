// Package inmemdb provides map-backed repositories for tests and local
// development. Semantics track the postgres repositories, including the
// document watch fan-out.
package inmemdb

import (
	"sync"

	"github.com/trezcool/darasa/core/document"
	"github.com/trezcool/darasa/core/user"
)

type (
	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	documentTable struct {
		mutex    sync.RWMutex
		table    map[string]*document.Document
		watchers map[*documentWatch]struct{}
	}

	DB struct {
		user     *userTable
		document *documentTable
	}
)

func Open() *DB {
	return &DB{
		user:     &userTable{table: make(map[string]*user.User)},
		document: &documentTable{table: make(map[string]*document.Document), watchers: make(map[*documentWatch]struct{})},
	}
}
