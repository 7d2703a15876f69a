package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jacentio/fgo/ledger"
)

// printReceipt writes one line for the call and one per emitted event.
func printReceipt(w io.Writer, rec *ledger.Receipt) {
	fmt.Fprintf(w, "%s %s from %s\n", rec.ID, rec.Operation, rec.From.Hex())
	for _, l := range rec.Logs {
		fmt.Fprintf(w, "  %s %s %s\n", l.Address.Hex(), l.Event.EventName(), formatEvent(l.Event))
	}
}

func formatEvent(e ledger.Event) string {
	switch e := e.(type) {
	case ledger.ChildTemplateCreated:
		return fmt.Sprintf("tokenId=%d uri=%s", e.TokenID, e.URI)
	case ledger.ParentTemplateCreated:
		return fmt.Sprintf("tokenId=%d uri=%s", e.TokenID, e.URI)
	case ledger.TransferSingle:
		return fmt.Sprintf("operator=%s from=%s to=%s id=%d amount=%d",
			e.Operator.Hex(), e.From.Hex(), e.To.Hex(), e.ID, e.Amount)
	case ledger.TransferBatch:
		return fmt.Sprintf("operator=%s from=%s to=%s ids=%s amounts=%s",
			e.Operator.Hex(), e.From.Hex(), e.To.Hex(), joinUints(e.IDs), joinUints(e.Amounts))
	case ledger.Transfer:
		return fmt.Sprintf("from=%s to=%s tokenId=%d", e.From.Hex(), e.To.Hex(), e.TokenID)
	case ledger.Approval:
		return fmt.Sprintf("owner=%s approved=%s tokenId=%d", e.Owner.Hex(), e.Approved.Hex(), e.TokenID)
	case ledger.ApprovalForAll:
		return fmt.Sprintf("owner=%s operator=%s approved=%t", e.Owner.Hex(), e.Operator.Hex(), e.Approved)
	}
	return fmt.Sprintf("%+v", e)
}

func joinUints(vs []uint64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatUint(v, 10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token id %q", s)
	}
	return id, nil
}

func parseAmount(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}

func toUint64s(vs []uint) []uint64 {
	if vs == nil {
		return nil
	}
	out := make([]uint64, len(vs))
	for i, v := range vs {
		out[i] = uint64(v)
	}
	return out
}

// readSVG loads an SVG document from a file.
func readSVG(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("--svg is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read svg: %w", err)
	}
	return string(b), nil
}
