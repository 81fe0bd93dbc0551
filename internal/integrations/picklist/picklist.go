// Package picklist reads tab-separated warehouse pick lists.
//
// The first line is a header. Column 1 holds the order number, columns 2
// and 3 are kept on each item under their header names, and the last column
// is the pick location hall-section-shelf.
package picklist

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"pickbatch/internal/batching"
	"pickbatch/internal/integrations"
)

var ErrMalformedRow = errors.New("picklist: malformed row")

// DefaultMaxOrders is the order cap the batching tools apply by default.
const DefaultMaxOrders = 102

// Aisle names the aisle a picker walks to reach a hall section.
//
// Halls 1 and above 22 are single aisles, and hall 52 is the north side of
// hall 48. Every other hall is split in an a and a b half: at section 34
// for halls 2 to 18, at 16 for hall 22, at 18 for halls 20 and 21. Hall 19
// splits odd sections at 33 and even ones at 18.
func Aisle(hall, section int) string {
	h := strconv.Itoa(hall)
	split := 18
	switch {
	case hall == 52:
		return "48"
	case hall == 1 || hall > 22:
		return h
	case hall >= 2 && hall <= 18:
		split = 34
	case hall == 19 && section%2 != 0:
		split = 33
	case hall == 22:
		split = 16
	}
	if section <= split {
		return h + "a"
	}
	return h + "b"
}

// ParseLocation splits a hall-section-shelf location into its item fields.
func ParseLocation(loc string) (batching.Item, error) {
	parts := strings.Split(strings.TrimSpace(loc), "-")
	if len(parts) < 3 {
		return batching.Item{}, fmt.Errorf("location %q is not hall-section-shelf", loc)
	}
	hall, err := strconv.Atoi(parts[0])
	if err != nil || hall < 1 {
		return batching.Item{}, fmt.Errorf("location %q: bad hall %q", loc, parts[0])
	}
	section, err := strconv.Atoi(parts[1])
	if err != nil {
		return batching.Item{}, fmt.Errorf("location %q: bad section %q", loc, parts[1])
	}
	return batching.Item{Aisle: Aisle(hall, section), Section: section, Shelf: parts[2]}, nil
}

// Parse reads a pick list. Orders keep the order they first appear in;
// reading stops at the first row of a new order once more than maxOrders
// orders are held, so at most maxOrders+1 orders come back. maxOrders <= 0
// reads everything.
func Parse(r io.Reader, maxOrders int) ([]batching.Order, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: missing header", ErrMalformedRow)
	}
	header := strings.Split(trim(sc.Text()), "\t")
	if len(header) < 4 {
		return nil, fmt.Errorf("%w: line 1: header has %d columns, need 4", ErrMalformedRow, len(header))
	}

	var orders []batching.Order
	pos := map[string]int{}
	line := 1
	for sc.Scan() {
		line++
		text := trim(sc.Text())
		if text == "" {
			continue
		}
		values := strings.Split(text, "\t")
		if len(values) < 4 {
			return nil, fmt.Errorf("%w: line %d: %d columns, need 4", ErrMalformedRow, line, len(values))
		}
		id := strings.TrimSpace(values[1])
		if id == "" {
			return nil, fmt.Errorf("%w: line %d: empty order number", ErrMalformedRow, line)
		}
		item, err := ParseLocation(values[len(values)-1])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedRow, line, err)
		}
		item.Attrs = map[string]string{header[2]: values[2], header[3]: values[3]}

		i, ok := pos[id]
		if !ok {
			if maxOrders > 0 && len(orders) > maxOrders {
				break
			}
			i = len(orders)
			pos[id] = i
			orders = append(orders, batching.Order{ID: id})
		}
		orders[i].Items = append(orders[i].Items, item)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func trim(s string) string { return strings.TrimRight(s, " \t\r\n") }

// FileSource serves the orders of one pick-list file.
type FileSource struct {
	Path      string
	MaxOrders int
}

var _ integrations.OrderSource = FileSource{}

func (s FileSource) Name() string { return "picklist" }

// FetchOrders returns every order of the file in a single page.
func (s FileSource) FetchOrders(ctx context.Context, cursor string) (integrations.OrderBatch, error) {
	if err := ctx.Err(); err != nil {
		return integrations.OrderBatch{}, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return integrations.OrderBatch{}, err
	}
	defer f.Close()
	orders, err := Parse(f, s.MaxOrders)
	if err != nil {
		return integrations.OrderBatch{}, fmt.Errorf("%s: %w", s.Path, err)
	}
	return integrations.OrderBatch{Orders: orders}, nil
}
