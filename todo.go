/*
	Project: Masomo Chat - real-time rooms for Masomo classes
	Target: teachers & students of a school (one deployment per school)
*/
package masomochat

/*
TODO: message edit/delete actions (is_edited & is_deleted are stored and honoured by history already)
TODO: cluster-wide occupancy: each instance only counts its own connections; the NATS relay only fans out events
TODO: admin: deactivate a room (is_active is checked everywhere but only settable in SQL)
*/
