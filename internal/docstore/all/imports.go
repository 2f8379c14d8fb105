// Package all registers every document-store backend with the docstore
// factory. Programs blank-import it so run files can select any backend.
package all

import (
	_ "github.com/ryanbass99/et-office-portal/internal/docstore/litestore"
	_ "github.com/ryanbass99/et-office-portal/internal/docstore/memstore"
	_ "github.com/ryanbass99/et-office-portal/internal/docstore/pgstore"
)
