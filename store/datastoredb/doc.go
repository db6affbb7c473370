/*
Package datastoredb provides an implementation of github.com/rocketcrew/elonbot/store's StringStorer interface
backed by the Google Cloud Datastore.

Requirements for the Google Cloud Datastore integration:
  - A valid project id with datastore mode enabled
  - Google Cloud Credentials (typically in the form of a json file with credentials from https://console.cloud.google.com/apis/credentials/serviceaccountkey)

Example code:

	import (
		"github.com/rocketcrew/elonbot/store/datastoredb"
		"google.golang.org/api/option"
	)

	func main() {
		// The first argument is the entity kind used as this instance's namespace ("goals" or "interactions").
		// The second argument is the gcloud project id. The remaining arguments are client options, most
		// commonly the path to a json credentials file
		goalStorer, err := datastoredb.New("goals", "rocketcrew-prod", option.WithCredentialsFile(*gcloudCredentialsFile))
		if err != nil {
			log.Fatalf("Opening [goals] db failed: %s", err.Error())
		}
		defer goalStorer.Close()

		goalStore, err := goals.NewStore(goals.NewStorerPersister(goalStorer, cipher))
		...
	}
*/
package datastoredb
