// Package ridecast forecasts hourly ride demand per location from raw
// geotagged pickup events.
//
// A training run loads the raw files, aggregates pickups into
// (year, month, day, hour, lat_bin, lon_bin) groups, splits the groups with a
// fixed seed, fits a linear regression, a random forest and a
// gradient-boosted tree ensemble, and publishes the model with the highest
// held-out R² together with the metrics of every variant.
//
// # Packages
//
//   - dataset: raw event loading (CSV, header aliases, strict validation)
//   - features: calendar and spatial feature derivation shared by training and serving
//   - model_selection: seeded train/test split
//   - linear, sklearn/tree, sklearn/ensemble: the model variants
//   - metrics: RMSE, MAE and R² on the held-out rows
//   - pipeline: stage orchestration and best-model selection
//   - artifact: atomic, checksummed model generations on disk
//   - serving: zone/time-window forecasts from the published generation
//   - config, pkg/log, pkg/errors: configuration, zerolog logging, error types
//
// # Quick Start
//
//	cfg, err := config.Load("ridecast.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	p, err := pipeline.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := p.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Best.Name, res.Best.Metrics.R2)
//
// The same flow is available from the command line:
//
//	ridecast train -config ridecast.yaml
//	ridecast predict -config ridecast.yaml -zone 1 -date 2014-04-07 -window "Evening (6-10 PM)"
package ridecast
