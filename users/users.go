// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package users

import (
	"context"
	"errors"
	"strconv"
	"sync"
)

var ErrUsernameTaken = errors.New("username already exists")

// User is a platform account as seen by the auth service.
type User struct {
	ID               string
	Username         string
	PasswordHash     string
	Avatar           string
	IsAdmin          bool
	IsVerified       bool
	VerificationType *string
}

// Directory resolves users. Lookups return (nil, nil) when no user matches.
type Directory interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	// Create stores a new user and returns it with its assigned ID. A taken
	// username yields ErrUsernameTaken.
	Create(ctx context.Context, u *User) (*User, error)
}

// StaticDirectory is an in-memory Directory for development and tests.
type StaticDirectory struct {
	mu     sync.RWMutex
	byID   map[string]*User
	byName map[string]*User
}

func NewStaticDirectory(users ...*User) *StaticDirectory {
	d := &StaticDirectory{
		byID:   make(map[string]*User),
		byName: make(map[string]*User),
	}
	for _, u := range users {
		d.Put(u)
	}
	return d
}

// NewDemoDirectory holds the single demo account, demo/password.
func NewDemoDirectory() (*StaticDirectory, error) {
	hash, err := HashPassword("password")
	if err != nil {
		return nil, err
	}
	verification := "GOV"
	return NewStaticDirectory(&User{
		ID:               "1",
		Username:         "demo",
		PasswordHash:     hash,
		Avatar:           "avatar-url",
		IsAdmin:          true,
		IsVerified:       true,
		VerificationType: &verification,
	}), nil
}

// Put adds or replaces a user.
func (d *StaticDirectory) Put(u *User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.put(u)
}

func (d *StaticDirectory) put(u *User) {
	if old, ok := d.byID[u.ID]; ok {
		delete(d.byName, old.Username)
	}
	d.byID[u.ID] = u
	d.byName[u.Username] = u
}

// Delete removes the user with id, if any.
func (d *StaticDirectory) Delete(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.byID[id]; ok {
		delete(d.byName, u.Username)
		delete(d.byID, id)
	}
}

// Create assigns the lowest free numeric ID.
func (d *StaticDirectory) Create(_ context.Context, u *User) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byName[u.Username]; ok {
		return nil, ErrUsernameTaken
	}

	stored := copyUser(u)
	for n := len(d.byID) + 1; ; n++ {
		id := strconv.Itoa(n)
		if _, ok := d.byID[id]; !ok {
			stored.ID = id
			break
		}
	}
	d.put(stored)
	return copyUser(stored), nil
}

func (d *StaticDirectory) GetByID(_ context.Context, id string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copyUser(d.byID[id]), nil
}

func (d *StaticDirectory) GetByUsername(_ context.Context, username string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copyUser(d.byName[username]), nil
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
