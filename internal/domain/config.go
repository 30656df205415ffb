package domain

// KeyPrefix namespaces every key this service writes into shared key-value stores.
const KeyPrefix = "booksearch:"
