// Package booksearch embeds the prompt-to-book matcher in a Go program.
//
// A Client loads a catalog once and answers free-text reading requests with
// one of three strategies:
//   - keyword_match: every prompt token must occur in the field
//   - lexical_similarity: TF-IDF cosine similarity
//   - semantic_similarity: cosine similarity of embeddings (requires WithEmbedder)
//
// # Usage
//
//	client, _ := booksearch.New(ctx,
//	    booksearch.WithCorpusFile("combined_summaries.csv"),
//	    booksearch.WithEmbedder(myEmbedder, "text-embedding-3-small"),
//	)
//	defer client.Close()
//
//	res, _ := client.Query(ctx, "a detective story set in Victorian London",
//	    booksearch.WithStrategy(booksearch.Semantic),
//	    booksearch.WithTopK(5),
//	)
//	for _, r := range res.Results {
//	    fmt.Println(r.Rank, r.Title, r.Score)
//	}
package booksearch
