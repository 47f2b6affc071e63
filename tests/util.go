package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/darasa/core/document"
	"github.com/trezcool/darasa/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, schoolID, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		SchoolID:  schoolID,
		Roles:     roles,
		IsActive:  &isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateDocument(
	t *testing.T,
	repo document.Repository,
	title, kind, ownerID, schoolID, visibility string,
) document.Document {
	t.Helper()

	content, err := document.NewContent(kind)
	if err != nil {
		t.Fatalf("CreateDocument() failed: %v", err)
	}
	now := time.Now().UTC()
	doc, err := repo.CreateDocument(context.Background(), document.Document{
		Title:      title,
		OwnerID:    ownerID,
		SchoolID:   schoolID,
		Visibility: visibility,
		Content:    content,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("CreateDocument() failed: %v", err)
	}
	return doc
}
