package marketapi

import (
	"fmt"

	"ecomarket/pkg/domain"
)

// Seed loads the demo catalog and two accounts: bere (admin) and
// ana (user), both with password 123456.
func Seed(s *Store) error {
	accounts := []domain.User{
		{Username: "bere", Email: "bere@ecomarket.local", Role: domain.RoleAdmin, Status: true},
		{Username: "ana", Email: "ana@ecomarket.local", Role: domain.RoleUser, Status: true},
	}
	for _, a := range accounts {
		if _, err := s.CreateUser(a, "123456"); err != nil {
			return fmt.Errorf("seed user %s: %w", a.Username, err)
		}
	}
	products := []domain.Product{
		{ID: 1, Name: "Bolsa de tela reutilizable", Category: "hogar", Price: 4.5, Stock: 40, CarbonFootprint: 0.3, RecyclablePackaging: true, LocalOrigin: true},
		{ID: 2, Name: "Cepillo de bambú", Category: "higiene", Price: 2.75, Stock: 100, CarbonFootprint: 0.1, RecyclablePackaging: true},
		{ID: 3, Name: "Botella de acero", Category: "hogar", Price: 12, Stock: 15, CarbonFootprint: 2.4},
		{ID: 7, Name: "Jabón artesanal", Category: "higiene", Price: 3.2, Stock: 3, CarbonFootprint: 0.2, RecyclablePackaging: true, LocalOrigin: true},
		{ID: 10, Name: "Compostera doméstica", Category: "jardín", Price: 35, Stock: 5, CarbonFootprint: 5.8, LocalOrigin: true},
	}
	for _, p := range products {
		s.SaveProduct(p)
	}
	return nil
}

// NewSeeded builds a server over a seeded store, for local runs and tests.
func NewSeeded(secret string) (*Server, *Store, error) {
	store := NewStore()
	if err := Seed(store); err != nil {
		return nil, nil, err
	}
	tokens, err := NewTokens(secret, 0)
	if err != nil {
		return nil, nil, err
	}
	srv, err := New(Config{Store: store, Tokens: tokens})
	if err != nil {
		return nil, nil, err
	}
	return srv, store, nil
}
