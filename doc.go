/*
Package elonbot connects the Elon reply pipeline to slack.

A Bot listens to direct messages over the slack real time api, hands each of them to a
MessageHandler (usually a *pipeline.Orchestrator) and posts the reply back in the same
conversation. Messages are spread over partitions by user so that the replies to a given user
keep their order.

The bot also runs scheduled jobs:
 - the end-of-day check-in broadcast to the active employees of the roster
 - the deadline sweep following up on goals due within 24 hours
 - the retention of interactions and inactive goals

Bot implements pipeline.Dispatcher so the same slack connection delivers check-ins and deadline
follow-ups.

Example:

	b := elonbot.NewBot("elon", v, elonbot.OptionLogger(logger), elonbot.OptionRoster(r))
	o := pipeline.New(a, goalStore, generator, interactionLog, pipeline.OptionDispatcher(b.Dispatcher()))

	bot, err := b.WithMessageHandler(o).
		WithCheckins(broadcaster).
		WithDeadlineSweep(o).
		WithCloser(elonbot.CloserFunc(goalStore.Flush)).
		Build()
	if err != nil {
		log.Fatal(err)
	}
	defer bot.Close()

	err = bot.Run()
*/
package elonbot
