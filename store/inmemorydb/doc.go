/*
Package inmemorydb provides an implementation of github.com/rocketcrew/elonbot/store's StringStorer interface
as an in-memory data store relying on a wrapping StringStorer for actual persistence.

The main use-case for the inmemorydb is to shield a remote StringStorer (the datastoredb) from the
full scans done when listing interactions and loading goals. Goal and interaction volumes for a
small team are tiny so keeping them in memory is cheap.

Example code:

	import (
		"github.com/rocketcrew/elonbot/store/datastoredb"
		"github.com/rocketcrew/elonbot/store/inmemorydb"
		"google.golang.org/api/option"
	)

	func main() {
		persistentStorer, err := datastoredb.New("interactions", "rocketcrew-prod", option.WithCredentialsFile(*gcloudCredentialsFile))
		if err != nil {
			log.Fatalf("Opening [interactions] db failed: %s", err.Error())
		}

		interactionStorer, err := inmemorydb.New(persistentStorer)
		if err != nil {
			log.Fatalf("Creating in-memory db wrapper failed: %s", err.Error())
		}
		defer interactionStorer.Close()
		...
	}
*/
package inmemorydb
