package db

import (
	"sort"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

func sortKeysNewestFirst(keys []*models.APIKey) {
	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
}

func sortTransactionsNewestFirst(txns []*models.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].CreatedAt.After(txns[j].CreatedAt)
	})
}
