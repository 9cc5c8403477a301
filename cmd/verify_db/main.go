package main

import (
	"context"
	"fmt"
	"log"

	"github.com/kellerb/sam-watch/internal/db"
)

func main() {
	ctx := context.Background()
	pool, err := db.Connect(ctx, "")
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	var total, newCount, dismissed, withDeadline int
	err = pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE review_status = 'new'),
			count(*) FILTER (WHERE review_status = 'dismissed'),
			count(*) FILTER (WHERE response_deadline >= NOW())
		FROM opportunities
	`).Scan(&total, &newCount, &dismissed, &withDeadline)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	var cachedAwards, pricedAwards int
	err = pool.QueryRow(ctx, `
		SELECT count(*), count(unit_price) FILTER (WHERE unit_price > 0)
		FROM award_cache
	`).Scan(&cachedAwards, &pricedAwards)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	fmt.Printf("Total opportunities: %d\n", total)
	fmt.Printf("Awaiting review: %d\n", newCount)
	fmt.Printf("Dismissed: %d\n", dismissed)
	fmt.Printf("Deadline still open: %d\n", withDeadline)
	fmt.Printf("Cached awards: %d\n", cachedAwards)
	fmt.Printf("With unit price: %d\n", pricedAwards)
}
