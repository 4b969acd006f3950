package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Item is one purchasable or foraged item type.
type Item struct {
	Type          string  `yaml:"type"`
	Name          string  `yaml:"name"`
	Price         int     `yaml:"price"`         // shop price; 0 = not sold
	DefaultStock  int     `yaml:"default_stock"` // shop restock level; 0 = not stocked
	HungerRestore float64 `yaml:"hunger_restore"`
	ThirstRestore float64 `yaml:"thirst_restore"`
	Durability    int     `yaml:"durability"` // -1 = stackable/non-durable
	SleepingBag   bool    `yaml:"sleeping_bag"`
}

// Edible reports whether the item restores hunger when eaten.
func (i *Item) Edible() bool { return i.HungerRestore > 0 }

// Drinkable reports whether the item restores thirst when drunk.
func (i *Item) Drinkable() bool { return i.ThirstRestore > 0 }

// ItemTable indexes item definitions by type tag.
type ItemTable struct {
	items map[string]*Item
	order []string // shop listing order, as authored
}

// Get returns an item definition, or nil.
func (t *ItemTable) Get(itemType string) *Item {
	return t.items[itemType]
}

// Count returns the number of item types loaded.
func (t *ItemTable) Count() int { return len(t.items) }

// ShopItems returns the sold item types in authored order.
func (t *ItemTable) ShopItems() []*Item {
	var out []*Item
	for _, typ := range t.order {
		it := t.items[typ]
		if it.Price > 0 && it.DefaultStock > 0 {
			out = append(out, it)
		}
	}
	return out
}

type itemListFile struct {
	Items []*Item `yaml:"items"`
}

// LoadItemTable loads item definitions from a YAML file.
func LoadItemTable(path string) (*ItemTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read item table: %w", err)
	}
	var f itemListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse item table: %w", err)
	}
	t := &ItemTable{items: make(map[string]*Item, len(f.Items))}
	for _, it := range f.Items {
		if it.Type == "" {
			return nil, fmt.Errorf("item with empty type in %s", path)
		}
		if _, dup := t.items[it.Type]; dup {
			return nil, fmt.Errorf("duplicate item type %q", it.Type)
		}
		t.items[it.Type] = it
		t.order = append(t.order, it.Type)
	}
	return t, nil
}

// DefaultItemTable is the built-in item set used when no YAML override is
// shipped. Prices and restores are the baked simulation constants.
func DefaultItemTable() *ItemTable {
	defs := []*Item{
		{Type: "bread", Name: "Bread", Price: 3, DefaultStock: 20, HungerRestore: 30, Durability: -1},
		{Type: "apple", Name: "Apple", Price: 2, DefaultStock: 30, HungerRestore: 15, Durability: -1},
		{Type: "stew", Name: "Hearty Stew", Price: 8, DefaultStock: 10, HungerRestore: 60, Durability: -1},
		{Type: "water_bottle", Name: "Bottled Water", Price: 2, DefaultStock: 30, ThirstRestore: 40, Durability: -1},
		{Type: "juice", Name: "Berry Juice", Price: 4, DefaultStock: 15, ThirstRestore: 55, HungerRestore: 5, Durability: -1},
		{Type: "sleeping_bag", Name: "Sleeping Bag", Price: 25, DefaultStock: 5, Durability: 20, SleepingBag: true},
		{Type: "wild_berries", Name: "Wild Berries", HungerRestore: 10, Durability: -1},
	}
	t := &ItemTable{items: make(map[string]*Item, len(defs))}
	for _, it := range defs {
		t.items[it.Type] = it
		t.order = append(t.order, it.Type)
	}
	return t
}
