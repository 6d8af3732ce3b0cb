package main

func QueryFileIDsToExtract() string {
	return `
SELECT		id
FROM		files
WHERE 		raw_metadata IS NOT NULL
AND 		raw_metadata != ''
ORDER BY	id -- for deterministic result order
`
}

func QueryKnownFileSignatures() string {
	return `
SELECT		id,
			path,
			content_hash,
			size,
			mod_time
FROM		files
WHERE 		path LIKE ?
ORDER BY	id -- for deterministic result order
`
}

func QueryDuplicateContentHashes() string {
	return `
SELECT		content_hash,
			count(*) member_count
FROM		files
WHERE 		content_hash IS NOT NULL
AND 		content_hash != ''
GROUP BY	content_hash
HAVING		count(*) > 1
ORDER BY	content_hash -- for deterministic result order
`
}

// GetBatchesOfIDs runs an ID-returning query and splits the result into
// config.BatchSize groups so callers can commit one transaction per group.
func (ctx *Context) GetBatchesOfIDs(query string, args ...any) (int64, [][]uint, error) {
	var ids []uint
	result := ctx.DB.Raw(query, args...).Scan(&ids)

	if result.Error != nil {
		return 0, nil, result.Error
	}

	batchSize := int(ctx.Config.BatchSize)

	if batchSize < 1 {
		batchSize = 1
	}

	var batches [][]uint

	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize

		if end > len(ids) {
			end = len(ids)
		}

		batches = append(batches, ids[start:end])
	}

	return int64(len(ids)), batches, nil
}
