package adsapi

import (
	"context"
	"sync"
)

// MutateCall records one Mutate invocation on a Fake.
type MutateCall struct {
	Credentials Credentials
	Operations  []Operation
}

// SearchCall records one Search invocation on a Fake.
type SearchCall struct {
	Credentials Credentials
	Query       Query
}

// Fake is an in-memory Factory and Service for tests and local tools.
// Behaviour is supplied through the optional func fields; calls are recorded.
type Fake struct {
	SearchFunc func(creds Credentials, q Query) ([]Row, error)
	MutateFunc func(creds Credentials, ops []Operation) (*MutateResult, error)
	ProbeFunc  func(creds Credentials) (*Customer, error)
	ListFunc   func(creds Credentials) ([]string, error)

	mu        sync.Mutex
	searches  []SearchCall
	mutations []MutateCall
	probes    []Credentials
}

// ForCustomer implements Factory.
func (f *Fake) ForCustomer(creds Credentials) Service {
	creds.CustomerID = NormalizeCustomerID(creds.CustomerID)
	creds.LoginCustomerID = NormalizeCustomerID(creds.LoginCustomerID)
	return &fakeClient{fake: f, creds: creds}
}

// Searches returns the recorded Search calls.
func (f *Fake) Searches() []SearchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SearchCall(nil), f.searches...)
}

// Mutations returns the recorded Mutate calls.
func (f *Fake) Mutations() []MutateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]MutateCall(nil), f.mutations...)
}

// Probes returns the credentials of every Probe call.
func (f *Fake) Probes() []Credentials {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Credentials(nil), f.probes...)
}

type fakeClient struct {
	fake  *Fake
	creds Credentials
}

func (c *fakeClient) Search(ctx context.Context, q Query) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := q.GAQL(); err != nil {
		return nil, err
	}
	c.fake.mu.Lock()
	c.fake.searches = append(c.fake.searches, SearchCall{Credentials: c.creds, Query: q})
	c.fake.mu.Unlock()
	if c.fake.SearchFunc == nil {
		return nil, nil
	}
	return c.fake.SearchFunc(c.creds, q)
}

func (c *fakeClient) Mutate(ctx context.Context, ops []Operation) (*MutateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.fake.mu.Lock()
	c.fake.mutations = append(c.fake.mutations, MutateCall{
		Credentials: c.creds,
		Operations:  append([]Operation(nil), ops...),
	})
	c.fake.mu.Unlock()
	if c.fake.MutateFunc == nil {
		return &MutateResult{}, nil
	}
	return c.fake.MutateFunc(c.creds, ops)
}

func (c *fakeClient) Probe(ctx context.Context) (*Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.fake.mu.Lock()
	c.fake.probes = append(c.fake.probes, c.creds)
	c.fake.mu.Unlock()
	if c.fake.ProbeFunc == nil {
		return &Customer{ID: c.creds.CustomerID}, nil
	}
	return c.fake.ProbeFunc(c.creds)
}

func (c *fakeClient) ListAccessibleCustomers(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.fake.ListFunc == nil {
		return nil, nil
	}
	return c.fake.ListFunc(c.creds)
}
