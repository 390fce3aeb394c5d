package main

import (
	"strconv"
	"strings"
)

const (
	defaultPage    = 1
	defaultPerPage = 50
	maxPerPage     = 200
)

type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"perPage"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

func parsePage(rawPage string) int {
	page, err := strconv.Atoi(strings.TrimSpace(rawPage))
	if err != nil || page < defaultPage {
		return defaultPage
	}
	return page
}

func parsePerPage(raw string) int {
	perPage, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || perPage < 1 {
		return defaultPerPage
	}
	if perPage > maxPerPage {
		return maxPerPage
	}
	return perPage
}

func buildPagination(totalCount, currentPage, pageSize int) Pagination {
	if pageSize < 1 {
		pageSize = defaultPerPage
	}
	if currentPage < defaultPage {
		currentPage = defaultPage
	}

	totalPages := 0
	if totalCount > 0 {
		totalPages = (totalCount + pageSize - 1) / pageSize
	}

	return Pagination{
		Page:       currentPage,
		PerPage:    pageSize,
		Total:      totalCount,
		TotalPages: totalPages,
		HasNext:    currentPage < totalPages,
		HasPrev:    currentPage > defaultPage,
	}
}
