package blobstore

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
)

// UploadCSV writes header and rows as CSV and stores the result under
// fileName for owner.
func UploadCSV(ctx context.Context, store BlobStore, owner, kind, fileName string, header []string, rows [][]string) (*BlobMetadata, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("export csv: write header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return nil, fmt.Errorf("export csv: write record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("export csv: %w", err)
	}

	return store.Upload(ctx, BlobMetadata{
		FileName:    fileName,
		ContentType: "text/csv",
		Kind:        kind,
		Owner:       owner,
		Tags:        map[string]string{"rows": fmt.Sprint(len(rows))},
	}, &buf)
}
